package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is a DevTools protocol connection to a single page target. Writes
// are serialized behind a mutex; a read pump routes responses to callers by
// message id and fans events out to waiters.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int
	pending  map[int]chan cdpResponse
	waiters  map[string][]chan json.RawMessage
	readErr  error
	closedCh chan struct{}
}

type cdpMessage struct {
	ID     int             `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params interface{}     `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpResponse struct {
	Result json.RawMessage
	Err    error
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// ConnectPage locates a page target behind the browser endpoint and dials its
// debugger socket. Headless chrome always starts with one about:blank page.
func ConnectPage(ctx context.Context, browserWSURL string) (*Session, error) {
	pageWS, err := firstPageTarget(ctx, browserWSURL)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, pageWS)
}

// firstPageTarget queries the DevTools HTTP API colocated with the browser
// websocket endpoint for an attachable page.
func firstPageTarget(ctx context.Context, browserWSURL string) (string, error) {
	u, err := url.Parse(browserWSURL)
	if err != nil {
		return "", fmt.Errorf("parse devtools url: %w", err)
	}

	listURL := "http://" + u.Host + "/json/list"
	req, err := http.NewRequestWithContext(ctx, "GET", listURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query devtools targets: %w", err)
	}
	defer resp.Body.Close()

	var targets []struct {
		Type                 string `json:"type"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("decode devtools targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("no page target available at %s", listURL)
}

func Dial(ctx context.Context, wsURL string) (*Session, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	s := &Session{
		conn:     conn,
		pending:  make(map[int]chan cdpResponse),
		waiters:  make(map[string][]chan json.RawMessage),
		closedCh: make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

func (s *Session) readPump() {
	for {
		var msg cdpMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			s.readErr = err
			for _, ch := range s.pending {
				ch <- cdpResponse{Err: err}
			}
			s.pending = make(map[int]chan cdpResponse)
			s.mu.Unlock()
			close(s.closedCh)
			return
		}

		if msg.ID != 0 {
			s.mu.Lock()
			ch, ok := s.pending[msg.ID]
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			if ok {
				if msg.Error != nil {
					ch <- cdpResponse{Err: msg.Error}
				} else {
					ch <- cdpResponse{Result: msg.Result}
				}
			}
			continue
		}

		if msg.Method != "" {
			var params json.RawMessage
			if msg.Params != nil {
				params, _ = json.Marshal(msg.Params)
			}
			s.mu.Lock()
			waiters := s.waiters[msg.Method]
			delete(s.waiters, msg.Method)
			s.mu.Unlock()
			for _, ch := range waiters {
				ch <- params
			}
		}
	}
}

// Call issues a protocol method and waits for its response.
func (s *Session) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return nil, err
	}
	s.nextID++
	id := s.nextID
	ch := make(chan cdpResponse, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(cdpMessage{ID: id, Method: method, Params: params})
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Err)
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// WaitEvent returns a channel that receives the params of the next event with
// the given method. Register before triggering the action that fires it.
func (s *Session) WaitEvent(method string) <-chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	s.mu.Lock()
	s.waiters[method] = append(s.waiters[method], ch)
	s.mu.Unlock()
	return ch
}

// Navigate drives the page to a URL and blocks until the load event fires.
func (s *Session) Navigate(ctx context.Context, pageURL string) error {
	if _, err := s.Call(ctx, "Page.enable", nil); err != nil {
		return err
	}
	loaded := s.WaitEvent("Page.loadEventFired")
	if _, err := s.Call(ctx, "Page.navigate", map[string]string{"url": pageURL}); err != nil {
		return err
	}
	select {
	case <-loaded:
		return nil
	case <-s.closedCh:
		return fmt.Errorf("connection closed while loading %s", pageURL)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Evaluate runs a JavaScript expression and decodes its by-value result.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	raw, err := s.Call(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
	})
	if err != nil {
		return err
	}
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	if result.ExceptionDetails != nil {
		return fmt.Errorf("javascript exception: %s", result.ExceptionDetails.Text)
	}
	if out == nil || len(result.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(result.Result.Value, out)
}

func (s *Session) Close() error {
	return s.conn.Close()
}

package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// chromeCandidates lists executable names probed in order. CHROME_PATH wins
// when set.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

var devtoolsURLRegex = regexp.MustCompile(`DevTools listening on (ws://\S+)`)

var ErrChromeNotFound = errors.New("no chrome or chromium executable found")

// Chrome is a headless browser process with its DevTools endpoint.
type Chrome struct {
	cmd         *exec.Cmd
	userDataDir string

	// WebSocketURL is the browser-level DevTools endpoint printed by chrome
	// at startup.
	WebSocketURL string
}

func FindExecutable() (string, error) {
	if env := strings.TrimSpace(os.Getenv("CHROME_PATH")); env != "" {
		if _, err := exec.LookPath(env); err == nil {
			return env, nil
		}
		return "", fmt.Errorf("%w: CHROME_PATH=%q is not executable", ErrChromeNotFound, env)
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrChromeNotFound
}

// Launch starts a headless chrome with an ephemeral DevTools port and waits
// for the endpoint announcement on stderr.
func Launch(ctx context.Context) (*Chrome, error) {
	bin, err := FindExecutable()
	if err != nil {
		return nil, err
	}

	userDataDir, err := os.MkdirTemp("", "wpforge-chrome-")
	if err != nil {
		return nil, fmt.Errorf("create chrome profile dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"--headless=new",
		"--disable-gpu",
		"--no-sandbox",
		"--no-first-run",
		"--disable-extensions",
		"--remote-debugging-port=0",
		"--user-data-dir="+userDataDir,
		"about:blank",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(userDataDir)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	c := &Chrome{cmd: cmd, userDataDir: userDataDir}

	urlCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if url, ok := ParseDevToolsURL(scanner.Text()); ok {
				select {
				case urlCh <- url:
				default:
				}
			}
		}
	}()

	select {
	case url := <-urlCh:
		c.WebSocketURL = url
		return c, nil
	case <-time.After(15 * time.Second):
		c.Close()
		return nil, errors.New("chrome did not announce a DevTools endpoint within 15s")
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// ParseDevToolsURL extracts the websocket endpoint from a chrome stderr line.
func ParseDevToolsURL(line string) (string, bool) {
	m := devtoolsURLRegex.FindStringSubmatch(line)
	if len(m) != 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func (c *Chrome) Close() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_, _ = c.cmd.Process.Wait()
	}
	if c.userDataDir != "" {
		_ = os.RemoveAll(c.userDataDir)
	}
}

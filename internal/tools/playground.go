package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wpforge-dev/wpforge/internal/browser"
)

// fatalMarkers are the strings WordPress renders when PHP dies during a page
// load. Their presence after activation fails the playground test.
var fatalMarkers = []string{
	"There has been a critical error on this website",
	"Fatal error:",
	"Parse error:",
	"Uncaught Error:",
}

func newPlaygroundTestTool(env Env) Tool {
	return Tool{
		Name:        "playground_test",
		Description: "Load the WordPress front page in headless Chrome and verify the active plugin did not crash it.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}

			runCtx, cancel := context.WithTimeout(ctx, env.Timeouts.Playground())
			defer cancel()

			env.emit(EventRunning, "playground_test", "checking front page in headless chrome", nil)

			chrome, err := browser.Launch(runCtx)
			if errors.Is(err, browser.ErrChromeNotFound) {
				return unavailable("chrome is not installed, playground test skipped"), nil
			}
			if err != nil {
				return Result{}, newToolError(KindExternalFailure, "playground_test", "could not launch chrome", err)
			}
			defer chrome.Close()

			sess, err := browser.ConnectPage(runCtx, chrome.WebSocketURL)
			if err != nil {
				return Result{}, newToolError(KindExternalFailure, "playground_test", "could not attach to chrome", err)
			}
			defer sess.Close()

			pages := []string{
				env.Stack.SiteURL() + "/",
				env.Stack.SiteURL() + "/wp-login.php",
			}
			for _, page := range pages {
				verdict, err := checkPage(runCtx, sess, page)
				if err != nil {
					return Result{}, err
				}
				if verdict != "" {
					return failed(fmt.Sprintf("%s shows a fatal error:\n%s", page, verdict), map[string]any{"url": page}), nil
				}
			}
			return ok(fmt.Sprintf("%d pages rendered without fatal errors", len(pages)), map[string]any{"pages": len(pages)}), nil
		},
	}
}

// checkPage returns an excerpt around the first fatal marker, or empty when
// the page is healthy.
func checkPage(ctx context.Context, sess *browser.Session, url string) (string, error) {
	if err := sess.Navigate(ctx, url); err != nil {
		return "", newToolError(KindExternalFailure, "playground_test", "navigation to "+url+" failed", err)
	}
	var html string
	if err := sess.Evaluate(ctx, "document.documentElement.outerHTML", &html); err != nil {
		return "", newToolError(KindExternalFailure, "playground_test", "could not read page content", err)
	}
	return findFatalMarker(html), nil
}

func findFatalMarker(html string) string {
	for _, marker := range fatalMarkers {
		if idx := strings.Index(html, marker); idx >= 0 {
			return excerptAround(html, idx, 240)
		}
	}
	return ""
}

func excerptAround(text string, idx, width int) string {
	start := idx - width/4
	if start < 0 {
		start = 0
	}
	end := idx + width
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// dangerousPatterns flags PHP constructs that have no place in a generated
// plugin. Matches feed the compliance findings, line numbers included.
var dangerousPatterns = []struct {
	Code    string
	Message string
	Regex   *regexp.Regexp
}{
	{
		Code:    "eval",
		Message: "eval() executes arbitrary strings as code",
		Regex:   regexp.MustCompile(`\beval\s*\(`),
	},
	{
		Code:    "shell-exec",
		Message: "shell execution functions are forbidden in plugins",
		Regex:   regexp.MustCompile(`\b(?:system|exec|shell_exec|passthru|proc_open|popen)\s*\(`),
	},
	{
		Code:    "create-function",
		Message: "create_function() is removed in PHP 8 and eval-based",
		Regex:   regexp.MustCompile(`\bcreate_function\s*\(`),
	},
	{
		Code:    "assert-variable",
		Message: "assert() on a variable executes it as code",
		Regex:   regexp.MustCompile(`\bassert\s*\(\s*\$`),
	},
	{
		Code:    "preg-replace-eval",
		Message: "preg_replace with the /e modifier evaluates the replacement",
		Regex:   regexp.MustCompile(`preg_replace\s*\(\s*['"]([^'"]).*\1[a-df-zA-Z]*e[a-zA-Z]*['"]`),
	},
	{
		Code:    "remote-include",
		Message: "including code from a URL",
		Regex:   regexp.MustCompile(`\b(?:include|require)(?:_once)?\s*\(?\s*['"]https?://`),
	},
	{
		Code:    "unsanitized-sql",
		Message: "superglobal used directly in a database query, use $wpdb->prepare",
		Regex:   regexp.MustCompile(`\$wpdb->(?:query|get_results|get_var|get_row|get_col)\s*\([^)]*\$_(?:GET|POST|REQUEST|COOKIE)`),
	},
	{
		Code:    "unescaped-output",
		Message: "superglobal echoed without escaping",
		Regex:   regexp.MustCompile(`\becho\s+\$_(?:GET|POST|REQUEST|COOKIE)`),
	},
}

func newScanDangerousCodeTool(env Env) Tool {
	return Tool{
		Name:        "scan_dangerous_code",
		Description: "Scan every PHP file for dangerous constructs (eval, shell execution, unsanitized superglobals) and report matches with line numbers.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			files, err := phpFiles(env.Root)
			if err != nil {
				return Result{}, err
			}

			env.emit(EventRunning, "scan_dangerous_code", fmt.Sprintf("scanning %d files", len(files)), nil)

			var hits []string
			var details []map[string]any
			for _, file := range files {
				content, err := os.ReadFile(file)
				if err != nil {
					return Result{}, err
				}
				rel, relErr := filepath.Rel(env.Root, file)
				if relErr != nil {
					rel = file
				}
				rel = filepath.ToSlash(rel)

				for lineNo, line := range strings.Split(string(content), "\n") {
					for _, p := range dangerousPatterns {
						if p.Regex.MatchString(line) {
							hits = append(hits, fmt.Sprintf("%s:%d [%s] %s", rel, lineNo+1, p.Code, p.Message))
							details = append(details, map[string]any{
								"file":    rel,
								"line":    lineNo + 1,
								"code":    p.Code,
								"message": p.Message,
							})
						}
					}
				}
			}

			if len(hits) > 0 {
				return failed(strings.Join(hits, "\n"), map[string]any{"findings": details}), nil
			}
			return ok(fmt.Sprintf("no dangerous constructs in %d files", len(files)), map[string]any{"files": len(files)}), nil
		},
	}
}

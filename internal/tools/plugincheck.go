package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CheckFinding is one row of `wp plugin check` output.
type CheckFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRunPluginCheckTool(env Env) Tool {
	return Tool{
		Name:        "run_plugin_check",
		Description: "Run the official WordPress plugin-check tool against a plugin and report errors and warnings.",
		Schema: schemaObject([]string{"slug"}, map[string]string{
			"slug": "Plugin directory slug to check.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			slug, err := requiredStringParam(params, "slug")
			if err != nil {
				return Result{}, err
			}
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}

			env.emit(EventRunning, "run_plugin_check", "installing plugin-check", nil)

			res, err := runProcess(ctx, "run_plugin_check", "", env.Timeouts.PluginCheck(), "docker",
				env.Stack.WPCLIArgs("plugin", "install", "plugin-check", "--activate")...)
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("docker is not installed, plugin check skipped"), nil
				}
				return Result{}, err
			}
			if res.ExitCode != 0 && !strings.Contains(res.Combined(), "already") {
				return unavailable("could not install plugin-check: " + res.Combined()), nil
			}

			env.emit(EventRunning, "run_plugin_check", "checking "+slug, map[string]any{"slug": slug})

			res, err = runProcess(ctx, "run_plugin_check", "", env.Timeouts.PluginCheck(), "docker",
				env.Stack.WPCLIArgs("plugin", "check", slug, "--format=json")...)
			if err != nil {
				return Result{}, err
			}

			findings := parsePluginCheckOutput(res.Combined())
			if len(findings) == 0 && res.ExitCode != 0 {
				return Result{}, newToolError(KindExternalFailure, "run_plugin_check", "plugin check failed: "+res.Combined(), nil)
			}

			errorCount := 0
			var lines []string
			var details []map[string]any
			for _, f := range findings {
				if strings.EqualFold(f.Type, "ERROR") {
					errorCount++
				}
				lines = append(lines, fmt.Sprintf("%s:%d [%s] %s: %s", f.File, f.Line, strings.ToLower(f.Type), f.Code, f.Message))
				details = append(details, map[string]any{
					"file":    f.File,
					"line":    f.Line,
					"type":    strings.ToLower(f.Type),
					"code":    f.Code,
					"message": f.Message,
				})
			}

			if errorCount > 0 {
				return failed(strings.Join(lines, "\n"), map[string]any{"errors": errorCount, "findings": details}), nil
			}
			if len(lines) > 0 {
				return ok("warnings only:\n"+strings.Join(lines, "\n"), map[string]any{"findings": details}), nil
			}
			return ok("plugin check passed with no findings", nil), nil
		},
	}
}

// parsePluginCheckOutput handles wp plugin check's json format, which prints
// a FILE: header followed by a JSON array per checked file.
func parsePluginCheckOutput(output string) []CheckFinding {
	var findings []CheckFinding
	currentFile := ""
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if after, okCut := strings.CutPrefix(line, "FILE:"); okCut {
			currentFile = strings.TrimSpace(after)
			continue
		}
		if !strings.HasPrefix(line, "[") {
			continue
		}
		var rows []CheckFinding
		if err := json.Unmarshal([]byte(line), &rows); err != nil {
			continue
		}
		for i := range rows {
			if rows[i].File == "" {
				rows[i].File = currentFile
			}
		}
		findings = append(findings, rows...)
	}
	return findings
}

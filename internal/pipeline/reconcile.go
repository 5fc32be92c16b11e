package pipeline

import (
	"strings"

	"github.com/wpforge-dev/wpforge/internal/agent"
	"github.com/wpforge-dev/wpforge/internal/plugin"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

// testTools maps each reportable test to the tools whose execution proves it
// actually ran. Order is priority: the first listed tool that appears in the
// trace decides.
var testTools = map[plugin.TestName][]string{
	plugin.TestSyntaxCheck: {"check_php_syntax"},
	plugin.TestPlayground:  {"playground_test", "activate_plugin"},
	plugin.TestPHPUnit:     {"run_phpunit"},
	plugin.TestPluginCheck: {"run_plugin_check"},
}

// reconcileTests verifies the testing agent's self-reported results against
// the tool trace, which is the ground truth. A result for a test whose tool
// never ran is downgraded; a test whose tool reported unavailable is skipped
// regardless of what the agent claimed; the mandatory syntax check is
// synthesized when the agent omitted it.
func reconcileTests(reported []plugin.TestResult, trace []agent.ToolExecution, wantPlayground, wantPHPUnit bool) []plugin.TestResult {
	out := make([]plugin.TestResult, 0, len(reported)+1)
	seen := make(map[plugin.TestName]bool, len(reported))
	for _, r := range reported {
		// plugin-check belongs to the compliance pass; the testing agent
		// has no tool for it, so any such row is invented.
		if seen[r.TestName] || r.TestName == plugin.TestPluginCheck {
			continue
		}
		seen[r.TestName] = true
		out = append(out, reconcileOne(r, trace))
	}

	if !seen[plugin.TestSyntaxCheck] {
		row := synthesizeTest(plugin.TestSyntaxCheck, trace)
		if row.Status == plugin.TestSkipped {
			// The syntax check is always on; silence about it is an agent
			// failure, not an availability problem.
			row.Status = plugin.TestErrored
			row.Detail = "the testing agent never ran the syntax check"
		}
		out = append([]plugin.TestResult{row}, out...)
	}
	if wantPlayground && !seen[plugin.TestPlayground] {
		out = append(out, synthesizeTest(plugin.TestPlayground, trace))
	}
	if wantPHPUnit && !seen[plugin.TestPHPUnit] {
		out = append(out, synthesizeTest(plugin.TestPHPUnit, trace))
	}
	return out
}

func reconcileOne(r plugin.TestResult, trace []agent.ToolExecution) plugin.TestResult {
	exec, ran := lastExecution(trace, testTools[r.TestName]...)
	if !ran {
		if r.Status != plugin.TestSkipped {
			r.Status = plugin.TestErrored
			r.Detail = "reported without running the corresponding tool"
		}
		return r
	}
	switch exec.Outcome {
	case tools.OutcomeUnavailable:
		r.Status = plugin.TestSkipped
		if strings.TrimSpace(r.Detail) == "" {
			r.Detail = firstLine(exec.Output)
		}
	case tools.OutcomeFailed:
		if r.Status == plugin.TestPassed {
			r.Status = plugin.TestFailed
			r.Detail = firstLine(exec.Output)
		}
	}
	return r
}

// synthesizeTest builds a result row straight from the trace for a test the
// agent failed to report.
func synthesizeTest(name plugin.TestName, trace []agent.ToolExecution) plugin.TestResult {
	exec, ran := lastExecution(trace, testTools[name]...)
	if !ran {
		return plugin.TestResult{TestName: name, Status: plugin.TestSkipped, Detail: "not executed by the testing agent"}
	}
	return plugin.TestResult{TestName: name, Status: statusFromOutcome(exec.Outcome), Detail: firstLine(exec.Output)}
}

// pluginCheckResult derives the plugin-check row from the compliance phase's
// tool trace.
func pluginCheckResult(trace []agent.ToolExecution) plugin.TestResult {
	exec, ran := lastExecution(trace, "run_plugin_check")
	if !ran {
		return plugin.TestResult{TestName: plugin.TestPluginCheck, Status: plugin.TestSkipped, Detail: "not executed by the compliance agent"}
	}
	return plugin.TestResult{TestName: plugin.TestPluginCheck, Status: statusFromOutcome(exec.Outcome), Detail: firstLine(exec.Output)}
}

func lastExecution(trace []agent.ToolExecution, names ...string) (agent.ToolExecution, bool) {
	for i := len(trace) - 1; i >= 0; i-- {
		for _, name := range names {
			if trace[i].Tool == name {
				return trace[i], true
			}
		}
	}
	return agent.ToolExecution{}, false
}

func statusFromOutcome(outcome tools.Outcome) plugin.TestStatus {
	switch outcome {
	case tools.OutcomeOK:
		return plugin.TestPassed
	case tools.OutcomeUnavailable:
		return plugin.TestSkipped
	default:
		return plugin.TestFailed
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	const max = 200
	if len(s) > max {
		s = s[:max]
	}
	return s
}

package tools

import (
	"context"
	"fmt"
	"strings"
)

func newLookupGuidelinesTool(env Env) Tool {
	return Tool{
		Name:        "lookup_guidelines",
		Description: "Search the WordPress development guidelines for passages relevant to a question.",
		Schema: schemaObject([]string{"query"}, map[string]string{
			"query": "What to look up, e.g. 'how should settings pages sanitize input'.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			query, err := requiredStringParam(params, "query")
			if err != nil {
				return Result{}, err
			}
			if env.Guidelines == nil {
				return unavailable("guideline knowledge base is disabled"), nil
			}

			env.emit(EventReading, "lookup_guidelines", "searching guidelines", map[string]any{"query": query})

			snippets, err := env.Guidelines.Lookup(ctx, query, 5)
			if err != nil {
				return Result{}, newToolError(KindExternalFailure, "lookup_guidelines", "guideline search failed", err)
			}
			if len(snippets) == 0 {
				return ok("no guideline passages matched", nil), nil
			}

			var sb strings.Builder
			for _, s := range snippets {
				sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", s.Source, strings.TrimSpace(s.Content)))
			}
			return ok(sb.String(), map[string]any{"matches": len(snippets)}), nil
		},
	}
}

package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/soochol/finauto/internal/finauto"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// templateEnv is the variable set available to {{ ... }} placeholders.
func templateEnv(ac finauto.ActionContext) map[string]any {
	return map[string]any{
		"automation_name": ac.AutomationName,
		"automation_id":   ac.AutomationID,
		"run_id":          ac.RunID,
		"user_id":         ac.UserID,
		"now":             ac.Now,
	}
}

// renderTemplate replaces each {{ expr }} in text with the expression's
// value. Text without placeholders is returned unchanged.
//
// Example: "Close for {{ now.Format(\"January 2006\") }}".
func renderTemplate(text string, env map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if firstErr != nil {
			return m
		}
		src := placeholderRe.FindStringSubmatch(m)[1]
		program, err := expr.Compile(src, expr.Env(env))
		if err != nil {
			firstErr = fmt.Errorf("compile placeholder %q: %w", src, err)
			return m
		}
		v, err := expr.Run(program, env)
		if err != nil {
			firstErr = fmt.Errorf("evaluate placeholder %q: %w", src, err)
			return m
		}
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

package service

import "strings"

// RenderTemplate substitutes {{token}} placeholders in tpl with values
// from vars. Tokens without a matching variable are left verbatim so a
// typo in a template is visible instead of silently blank.
func RenderTemplate(tpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tpl, "{{") {
		return tpl
	}
	out := tpl
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// Prompt variables filled from the transcript.
const (
	VarChatHistory   = "chat_history"
	VarInput         = "input"
	VarCustomerQuery = "customer_query"
)

// placeholder matches ${name}; name can contain alphanumerics and underscore.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// UndefinedVariableError reports placeholders with no value.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined prompt variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined prompt variables: %s", strings.Join(e.Names, ", "))
}

// Prompt is an agent's system and user message templates.
//
// Templates reference transcript-derived values as ${chat_history},
// ${input} and ${customer_query}. Substituted values are not expanded
// again, so "${...}" inside an email body is passed through untouched.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render fills both templates from vars. An empty User template renders
// as the ${input} value.
func (p Prompt) Render(vars map[string]string) (system, user string, err error) {
	system, err = expand(p.System, vars)
	if err != nil {
		return "", "", fmt.Errorf("system prompt: %w", err)
	}
	tmpl := p.User
	if strings.TrimSpace(tmpl) == "" {
		tmpl = "${" + VarInput + "}"
	}
	user, err = expand(tmpl, vars)
	if err != nil {
		return "", "", fmt.Errorf("user prompt: %w", err)
	}
	return system, user, nil
}

// Variables returns the placeholder names the prompt uses.
func (p Prompt) Variables() []string {
	seen := map[string]bool{}
	var names []string
	for _, tmpl := range []string{p.System, p.User} {
		for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

func expand(s string, vars map[string]string) (string, error) {
	if s == "" {
		return "", nil
	}
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return out, &UndefinedVariableError{Names: missing}
	}
	return out, nil
}

package notify

import (
	"fmt"
	"strings"
)

// Render substitutes {{key}} placeholders in the template body.
func Render(t Template, vars map[string]string) (string, error) {
	body, ok := templates[t]
	if !ok {
		return "", fmt.Errorf("unknown sms template %q", t)
	}
	return InjectVariables(body, vars), nil
}

func InjectVariables(text string, vars map[string]string) string {
	for key, value := range vars {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}

package draft

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Placeholders returns the distinct {{name}} placeholders in tmpl.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			names = append(names, m[1])
			seen[m[1]] = true
		}
	}
	return names
}

// Render fills every placeholder in tmpl. A placeholder with no value is an error.
func Render(tmpl string, vars map[string]string) (string, error) {
	var missing []string
	for _, name := range Placeholders(tmpl) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		return vars[match[2:len(match)-2]]
	}), nil
}

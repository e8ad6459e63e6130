package switcher

import "strings"

// Placeholder is replaced by the input method name in switch commands.
const Placeholder = "{im}"

// ExpandCommand substitutes the first placeholder of template with im. The
// name is inserted verbatim, it is neither quoted nor escaped. An im read
// back by obtainCmd arrives here with its trailing "\r\n" already removed.
// An empty template or im yields an empty command.
func ExpandCommand(template, im string) string {
	if template == "" || im == "" {
		return ""
	}
	return strings.Replace(template, Placeholder, im, 1)
}

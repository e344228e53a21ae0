package worksheet

import "strings"

var inlineCommands = []struct {
	name        string
	open, close string
}{
	{name: "textbf", open: "<strong>", close: "</strong>"},
	{name: "textit", open: "<em>", close: "</em>"},
	{name: "text"},
}

// Format rewrites the inline commands \textbf{..}, \textit{..} and \text{..} into HTML.
// Arguments may nest other inline commands; an unbalanced or empty argument is left untouched.
func Format(s string) string {
	if !strings.Contains(s, `\text`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' {
			if out, n, ok := formatCommand(s[i:]); ok {
				b.WriteString(out)
				i += n
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func formatCommand(s string) (string, int, bool) {
	for _, cmd := range inlineCommands {
		arg, rest, ok := commandArg(s, cmd.name)
		if !ok || arg == "" {
			continue
		}
		return cmd.open + Format(arg) + cmd.close, len(s) - len(rest), true
	}
	return "", 0, false
}

// commandArg reports whether s starts with `\name{` and returns the brace balanced argument
// along with whatever follows its closing brace.
func commandArg(s, name string) (arg, rest string, ok bool) {
	prefix := `\` + name + "{"
	if !strings.HasPrefix(s, prefix) {
		return "", "", false
	}
	return balanced(s[len(prefix)-1:])
}

// balanced splits s, which must start with '{', at its matching closing brace.
// Backslash escaped characters never count as braces.
func balanced(s string) (arg, rest string, ok bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// wholeLineArg returns the argument of a line made only of `\name{arg}`.
func wholeLineArg(line string, names ...string) (name, arg string, ok bool) {
	for _, n := range names {
		if a, rest, found := commandArg(line, n); found && a != "" && strings.TrimSpace(rest) == "" {
			return n, a, true
		}
	}
	return "", "", false
}

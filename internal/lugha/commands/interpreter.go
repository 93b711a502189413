package commands

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Lugha/internal/lugha/lang"
)

// UsageError is a user-correctable command problem. It is a value returned
// by Interpret, never an error crossing package boundaries.
type UsageError struct {
	Message string
	Usage   string
}

// Text renders the message followed by usage guidance.
func (u *UsageError) Text() string {
	if u.Usage == "" {
		return u.Message
	}
	return u.Message + "\n\n" + u.Usage
}

type verb struct {
	name    string
	usage   string
	summary string
}

var verbs = []verb{
	{"set", "set language <name or code>", "choose the language I reply in"},
	{"status", "status", "show your current language"},
	{"languages", "languages", "list supported languages"},
	{"translate", "translate [to <language>] <text>", "translate text"},
	{"help", "help", "show this message"},
}

// HelpText lists every command with the router's prefix.
func (r *Router) HelpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, v := range verbs {
		fmt.Fprintf(&sb, "\n• %s %s - %s", r.prefix, v.usage, v.summary)
	}
	return sb.String()
}

func (r *Router) usage(v string) string {
	for _, vb := range verbs {
		if vb.name == v {
			return "Usage: " + r.prefix + " " + vb.usage
		}
	}
	return r.HelpText()
}

// Interpret parses prefixed command text. It never panics and never returns
// a Go error; every failure is a *UsageError.
func (r *Router) Interpret(text string) (*Command, *UsageError) {
	body, ok := r.strip(text)
	if !ok || body == "" {
		return nil, &UsageError{Message: "Please type a command.", Usage: r.HelpText()}
	}

	parts := strings.Fields(body)
	cmd := &Command{Name: strings.ToLower(parts[0]), Args: []string{}, RawText: body}

	switch cmd.Name {
	case "set":
		if len(parts) < 2 || !strings.EqualFold(parts[1], "language") {
			return nil, &UsageError{Message: "What would you like to set?", Usage: r.usage("set")}
		}
		value := skipFields(body, 2)
		if value == "" {
			return nil, &UsageError{Message: "Please name a language.", Usage: r.usage("set") + "\n\n" + languagesBlock()}
		}
		l, err := lang.Resolve(value)
		if err != nil {
			return nil, unknownLanguage(value, r.prefix)
		}
		cmd.Subcommand = "language"
		cmd.Args = []string{value}
		cmd.Target = l.Code

	case "status", "languages", "help":
		cmd.Args = parts[1:]

	case "translate":
		rest := skipFields(body, 1)
		fields := strings.Fields(rest)
		if len(fields) >= 1 && strings.EqualFold(fields[0], "to") {
			if len(fields) < 3 {
				return nil, &UsageError{Message: "Please give a language and the text to translate.", Usage: r.usage("translate")}
			}
			l, err := lang.Resolve(fields[1])
			if err != nil {
				return nil, unknownLanguage(fields[1], r.prefix)
			}
			cmd.Target = l.Code
			rest = skipFields(rest, 2)
		}
		if rest == "" {
			return nil, &UsageError{Message: "Please give the text to translate.", Usage: r.usage("translate")}
		}
		cmd.Args = []string{rest}

	default:
		return nil, &UsageError{
			Message: fmt.Sprintf("I don't know the command %q.", parts[0]),
			Usage:   r.HelpText(),
		}
	}
	return cmd, nil
}

func languagesBlock() string {
	return "Supported languages:\n" + lang.Listing()
}

func unknownLanguage(value, prefix string) *UsageError {
	return &UsageError{
		Message: fmt.Sprintf("I don't recognise the language %q.", value),
		Usage:   languagesBlock() + "\n\nExample: " + prefix + " set language Luganda",
	}
}

// Package commands parses prefixed chat commands and routes them to handlers.
//
// Parsing never fails with a Go error: malformed input and unresolvable
// languages come back as a *UsageError carrying text the user can act on.
package commands

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Command is a parsed, validated command.
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	// Target is the resolved language code for "set language" and
	// "translate to"; empty otherwise.
	Target  string
	RawText string
}

// Key returns the handler key, "name" or "name.subcommand".
func (c *Command) Key() string {
	if c.Subcommand != "" {
		return c.Name + "." + c.Subcommand
	}
	return c.Name
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// Request identifies who issued a command.
type Request struct {
	SenderID    string
	DisplayName string
	Channel     string
}

// Handler executes a command and returns the reply text. A non-nil error is
// an infrastructure failure; the router replaces the reply with an apology.
type Handler func(ctx context.Context, cmd *Command, req *Request) (string, error)

// Apology is sent when a handler fails.
const Apology = "Sorry, I couldn't complete that right now. Please try again in a moment."

// Router routes commands to handlers.
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a router for commands starting with prefix.
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register registers a handler under a key such as "set.language".
func (r *Router) Register(key string, handler Handler) {
	r.handlers[key] = handler
}

// Route interprets text and runs the matching handler. The returned reply is
// always user-displayable. err is non-nil only for handler failures and is
// meant for logging.
func (r *Router) Route(ctx context.Context, text string, req *Request) (reply string, err error) {
	cmd, uerr := r.Interpret(text)
	if uerr != nil {
		return uerr.Text(), nil
	}

	handler, ok := r.handlers[cmd.Key()]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
	}
	if !ok {
		return (&UsageError{
			Message: fmt.Sprintf("The %q command is not available here.", cmd.Key()),
			Usage:   r.HelpText(),
		}).Text(), nil
	}

	reply, err = handler(ctx, cmd, req)
	if err != nil {
		return Apology, fmt.Errorf("commands: %s: %w", cmd.Key(), err)
	}
	return reply, nil
}

// strip removes the prefix and surrounding whitespace.
func (r *Router) strip(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(text, r.prefix)), true
}

// skipFields drops the first n whitespace-separated fields of s and returns
// the remainder with its inner spacing intact.
func skipFields(s string, n int) string {
	s = strings.TrimSpace(s)
	for i := 0; i < n && s != ""; i++ {
		idx := strings.IndexFunc(s, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		s = strings.TrimSpace(s[idx:])
	}
	return s
}

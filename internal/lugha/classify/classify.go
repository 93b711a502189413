// Package classify tags inbound events as command, audio, gratitude, or
// plain text. Classification is a pure function of the event and the
// classifier's configuration.
package classify

import (
	"sort"
	"strings"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/lang"
)

// Kind is the routing class of an inbound event.
type Kind string

const (
	KindCommand   Kind = "command"
	KindAudio     Kind = "audio"
	KindGratitude Kind = "gratitude"
	KindText      Kind = "text"
)

// DefaultPrefix starts every command message.
const DefaultPrefix = "$"

// DefaultGratitude is the built-in phrase dictionary, keyed by language code.
var DefaultGratitude = map[string][]string{
	"eng": {"thank you", "thanks", "thank u", "thx", "appreciate"},
	"lug": {"webale", "webale nyo", "webale nnyo", "mwebale"},
	"ach": {"apwoyo", "apwoyo matek"},
	"teo": {"eyalama", "eyalama noi"},
	"lgg": {"awa'difo", "awadifo"},
	"nyn": {"webare", "webare munonga"},
}

type phrase struct {
	lang string
	text string // folded
}

// Classifier holds the command prefix and the gratitude dictionary.
// It is read-only after construction.
type Classifier struct {
	prefix  string
	phrases []phrase
}

// New builds a classifier. Extra phrases are merged into DefaultGratitude.
// An empty prefix selects DefaultPrefix.
func New(prefix string, extra map[string][]string) *Classifier {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	c := &Classifier{prefix: prefix}

	seen := make(map[phrase]bool)
	add := func(code string, list []string) {
		for _, p := range list {
			ph := phrase{lang: code, text: lang.Fold(p)}
			if ph.text == "" || seen[ph] {
				continue
			}
			seen[ph] = true
			c.phrases = append(c.phrases, ph)
		}
	}
	for code, list := range DefaultGratitude {
		add(code, list)
	}
	for code, list := range extra {
		add(code, list)
	}

	// Longest phrase first so Match reports the most specific hit; ties
	// broken by language then text to keep the order stable.
	sort.Slice(c.phrases, func(i, j int) bool {
		a, b := c.phrases[i], c.phrases[j]
		if len(a.text) != len(b.text) {
			return len(a.text) > len(b.text)
		}
		if a.lang != b.lang {
			return a.lang < b.lang
		}
		return a.text < b.text
	})
	return c
}

// Prefix returns the command prefix.
func (c *Classifier) Prefix() string { return c.prefix }

// Classify returns the kind of evt. First match wins:
// command prefix, audio attachment, gratitude phrase, text.
func (c *Classifier) Classify(evt *inbound.Event) Kind {
	if evt == nil {
		return KindText
	}
	if c.IsCommand(evt.Text) {
		return KindCommand
	}
	if evt.HasAudio() {
		return KindAudio
	}
	if _, ok := c.Match(evt.Text); ok {
		return KindGratitude
	}
	return KindText
}

// IsCommand reports whether text starts with the command prefix.
func (c *Classifier) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), c.prefix)
}

// Match reports whether text contains a gratitude phrase in any configured
// language, and which language matched.
func (c *Classifier) Match(text string) (string, bool) {
	folded := lang.Fold(text)
	if folded == "" {
		return "", false
	}
	for _, p := range c.phrases {
		if strings.Contains(folded, p.text) {
			return p.lang, true
		}
	}
	return "", false
}

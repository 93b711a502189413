// Package prompt builds the system and user messages sent to the inference
// gateway. Compose is a pure function: identical inputs always produce
// byte-identical prompts.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Lugha/internal/lugha/classify"
	"github.com/bdobrica/Lugha/internal/lugha/lang"
	"github.com/bdobrica/Lugha/internal/lugha/memory"
)

// Input is everything the composer looks at.
type Input struct {
	History     []memory.Turn // oldest first, at most memory.DefaultHistory used
	Language    string        // preferred language code
	Kind        classify.Kind
	Text        string // raw user text, or the transcript for audio
	IsNewUser   bool
	DisplayName string
	// CommandPrefix is shown in the new-user welcome. Empty selects
	// classify.DefaultPrefix.
	CommandPrefix string
	// TranscriptLanguage is the language the transcriber detected, if any.
	TranscriptLanguage string
}

// Prompt is the composed message pair.
type Prompt struct {
	System string
	User   string
}

// Section headings, in the order they appear in the system message.
const (
	HeadingContext  = "## User"
	HeadingHistory  = "## Recent conversation"
	HeadingGuidance = "## This message"
	HeadingLanguage = "## Reply language"
)

const identity = `You are Lugha, a friendly assistant for people who speak the languages of Uganda.
You can hold a conversation, answer everyday questions, translate between English, Luganda, Acholi, Ateso, Lugbara and Runyankole, and understand voice messages.
Keep replies short and clear; they are read on a phone in a chat app.`

// Compose builds the prompt for in.
func Compose(in Input) Prompt {
	language := describe(in.Language)

	var sb strings.Builder

	// ─── 1. Identity ─────────────────────────────────────────────────────────
	sb.WriteString(identity)

	// ─── 2. User context ─────────────────────────────────────────────────────
	sb.WriteString("\n\n" + HeadingContext + "\n")
	name := oneLine(in.DisplayName)
	if name == "" {
		name = "(unknown)"
	}
	fmt.Fprintf(&sb, "- Name: %s\n", name)
	fmt.Fprintf(&sb, "- Preferred language: %s\n", language)
	if in.IsNewUser {
		sb.WriteString("- First conversation with you")
	} else {
		sb.WriteString("- Returning user")
	}

	// ─── 3. History (omitted when empty) ─────────────────────────────────────
	history := in.History
	if len(history) > memory.DefaultHistory {
		history = history[len(history)-memory.DefaultHistory:]
	}
	if len(history) > 0 {
		sb.WriteString("\n\n" + HeadingHistory + " (oldest first)\n")
		for i, t := range history {
			if i > 0 {
				sb.WriteString("\n")
			}
			speaker := "User"
			if t.Speaker == memory.SpeakerBot {
				speaker = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s", speaker, oneLine(t.Content))
		}
	}

	// ─── 4. Type guidance ────────────────────────────────────────────────────
	sb.WriteString("\n\n" + HeadingGuidance + "\n")
	sb.WriteString(guidance(in, language))

	// ─── 5. Closing language instruction ─────────────────────────────────────
	sb.WriteString("\n\n" + HeadingLanguage + "\n")
	fmt.Fprintf(&sb, "Write your whole reply in %s. Do not add a translation into any other language unless the user asks for one.", language)

	return Prompt{System: sb.String(), User: userMessage(in)}
}

// guidance never includes the user's text.
func guidance(in Input, language string) string {
	var lines []string
	switch in.Kind {
	case classify.KindGratitude:
		lines = append(lines,
			"The user is thanking you.",
			fmt.Sprintf("Acknowledge it warmly in one or two sentences in %s and offer further help.", language),
			"Use your own words. Never repeat or quote the user's message.",
		)
	case classify.KindAudio:
		src := "a voice message"
		if in.TranscriptLanguage != "" {
			src = fmt.Sprintf("a voice message spoken in %s", lang.NameOf(in.TranscriptLanguage))
		}
		lines = append(lines,
			fmt.Sprintf("The user's message is an automatic transcript of %s.", src),
			"Respond to what they said and refer to it as their voice message.",
			"Do not restate the transcript word for word. If it is unclear, ask them to repeat.",
		)
	default:
		lines = append(lines, "Answer the user's message helpfully and concisely.")
	}
	if in.IsNewUser {
		prefix := in.CommandPrefix
		if prefix == "" {
			prefix = classify.DefaultPrefix
		}
		lines = append(lines, fmt.Sprintf(
			"This is their first message: start with a one-line welcome and mention they can send \"%s help\" to see commands, including how to change the reply language.",
			prefix))
	}
	return strings.Join(lines, "\n")
}

func userMessage(in Input) string {
	if in.Kind == classify.KindAudio {
		return "Voice message transcript:\n" + strings.TrimSpace(in.Text)
	}
	return in.Text
}

// describe renders a language code as "Luganda (lug)".
func describe(code string) string {
	if l, ok := lang.Lookup(code); ok {
		return l.String()
	}
	if code == "" {
		l, _ := lang.Lookup(lang.Default)
		return l.String()
	}
	return code
}

// oneLine keeps history entries from spanning lines, so stored text cannot
// forge extra "User:"/"Assistant:" entries.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

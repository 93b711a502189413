package inference

import (
	"regexp"
	"strings"
)

var (
	// closed reasoning blocks
	reasoningBlock = regexp.MustCompile(`(?is)<(think|thinking|reasoning|scratchpad)\b[^>]*>.*?</(?:think|thinking|reasoning|scratchpad)\s*>`)
	// an opening tag with no closing tag swallows the rest of the output
	reasoningOpen = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning|scratchpad)\b[^>]*>.*$`)
	// stray closing tags; anything before one is leaked reasoning
	reasoningClose = regexp.MustCompile(`(?is)^.*</(?:think|thinking|reasoning|scratchpad)\s*>`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Clean strips reasoning markers from generated text and trims whitespace.
func Clean(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	text = reasoningOpen.ReplaceAllString(text, "")
	text = reasoningClose.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

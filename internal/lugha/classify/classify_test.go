package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/classify"
)

func textEvent(s string) *inbound.Event {
	return &inbound.Event{Type: inbound.TypeText, Text: s}
}

func TestClassify_Priority(t *testing.T) {
	c := classify.New("", nil)

	tests := []struct {
		name string
		evt  *inbound.Event
		want classify.Kind
	}{
		{"command", textEvent("$ status"), classify.KindCommand},
		{"command with leading space", textEvent("  $help"), classify.KindCommand},
		{"command beats gratitude", textEvent("$ translate thank you"), classify.KindCommand},
		{"audio", &inbound.Event{Type: inbound.TypeAudio, Media: &inbound.Media{ID: "m1"}}, classify.KindAudio},
		{"audio beats gratitude caption", &inbound.Event{Type: inbound.TypeAudio, Text: "thanks", Media: &inbound.Media{ID: "m1"}}, classify.KindAudio},
		{"luganda gratitude", textEvent("Webale nyo"), classify.KindGratitude},
		{"english gratitude substring", textEvent("ok THANKS a lot"), classify.KindGratitude},
		{"acholi gratitude", textEvent("apwoyo matek!"), classify.KindGratitude},
		{"plain text", textEvent("How do I plant beans?"), classify.KindText},
		{"empty", textEvent(""), classify.KindText},
		{"nil", nil, classify.KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.evt))
		})
	}
}

func TestClassify_NonCommandNonGratitudeIsText(t *testing.T) {
	c := classify.New("$", nil)
	inputs := []string{"hello", "oli otya", "weather in Gulu?", "123", "thank", "web ale"}
	for _, in := range inputs {
		assert.Equal(t, classify.KindText, c.Classify(textEvent(in)), "input %q", in)
	}
}

func TestMatch_ReportsLanguage(t *testing.T) {
	c := classify.New("", nil)

	code, ok := c.Match("Webale nnyo ssebo")
	assert.True(t, ok)
	assert.Equal(t, "lug", code)

	code, ok = c.Match("Eyalama noi")
	assert.True(t, ok)
	assert.Equal(t, "teo", code)
}

func TestNew_ExtraPhrases(t *testing.T) {
	c := classify.New("!", map[string][]string{"lug": {"nsonyiwa"}})

	assert.Equal(t, classify.KindGratitude, c.Classify(textEvent("NSONYIWA")))
	assert.Equal(t, classify.KindCommand, c.Classify(textEvent("!status")))
	assert.Equal(t, classify.KindText, c.Classify(textEvent("$status")))
}

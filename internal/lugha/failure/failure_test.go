package failure_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

func TestClassification(t *testing.T) {
	tr := fmt.Errorf("download: %w", failure.Transient("http get", context.DeadlineExceeded))
	assert.True(t, failure.IsTransient(tr))
	assert.False(t, failure.IsTerminal(tr))
	assert.ErrorIs(t, tr, context.DeadlineExceeded)

	te := failure.Terminal("validate", errors.New("bad header"), "Please send a voice note.")
	assert.True(t, failure.IsTerminal(te))
	assert.False(t, failure.IsTransient(te))
}

func TestGuidance(t *testing.T) {
	te := fmt.Errorf("audio: %w", failure.Terminal("duration", errors.New("too long"), "Try a shorter recording."))
	assert.Equal(t, "Try a shorter recording.", failure.Guidance(te, "fallback"))
	assert.Equal(t, "fallback", failure.Guidance(errors.New("other"), "fallback"))
}

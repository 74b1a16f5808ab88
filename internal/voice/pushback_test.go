package voice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushbackDetector_Detect(t *testing.T) {
	detector := NewPushbackDetector(nil)

	tests := []struct {
		name     string
		message  string
		wantType PushbackType
		wantNone bool
	}{
		{
			name:     "hurry up",
			message:  "Can you hurry up please",
			wantType: PushbackImpatience,
		},
		{
			name:     "no time for this",
			message:  "I don't have time for this",
			wantType: PushbackImpatience,
		},
		{
			name:     "ridiculous",
			message:  "this is ridiculous",
			wantType: PushbackFrustration,
		},
		{
			name:     "getting frustrated",
			message:  "I'm getting frustrated with this call",
			wantType: PushbackFrustration,
		},
		{
			name:     "already told you",
			message:  "I already told you my name",
			wantType: PushbackRepetition,
		},
		{
			name:     "keep asking",
			message:  "You keep asking the same thing",
			wantType: PushbackRepetition,
		},
		{
			name:     "wants a human",
			message:  "Let me talk to a human",
			wantType: PushbackExplicit,
		},
		{
			name:     "terrible service",
			message:  "this is the worst service I've ever had",
			wantType: PushbackExplicit,
		},
		{
			name:     "neutral message",
			message:  "I'd like to book an appointment for Tuesday",
			wantNone: true,
		},
		{
			name:     "empty message",
			message:  "",
			wantNone: true,
		},
		{
			name:     "whitespace only",
			message:  "   ",
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := detector.Detect(context.Background(), tt.message)
			if tt.wantNone {
				assert.Nil(t, signal)
				return
			}
			require.NotNil(t, signal)
			assert.True(t, signal.IsPushback)
			assert.Equal(t, tt.wantType, signal.Type)
			assert.Greater(t, signal.Confidence, 0.0)
			assert.LessOrEqual(t, signal.Confidence, 0.95)
			assert.Equal(t, tt.message, signal.OriginalMessage)
			assert.NotEmpty(t, signal.TriggerPhrase)
		})
	}
}

func TestPushbackDetector_DetectFirstMatchWins(t *testing.T) {
	detector := NewPushbackDetector(nil)

	// Matches both frustration ("stop asking") and repetition ("I already
	// told"). Detect scans categories in order and must return exactly one.
	signal := detector.Detect(context.Background(), "I already told you that, stop asking")
	require.NotNil(t, signal)
	assert.Contains(t, []PushbackType{PushbackFrustration, PushbackRepetition}, signal.Type)
	// Frustration is declared before repetition, so that category wins.
	assert.Equal(t, PushbackFrustration, signal.Type)
}

func TestPushbackDetector_DetectAll(t *testing.T) {
	detector := NewPushbackDetector(nil)

	signals := detector.DetectAll(context.Background(), "I already told you that, stop asking")
	require.GreaterOrEqual(t, len(signals), 2)

	types := make(map[PushbackType]bool)
	for _, s := range signals {
		assert.True(t, s.IsPushback)
		types[s.Type] = true
	}
	assert.True(t, types[PushbackFrustration])
	assert.True(t, types[PushbackRepetition])
}

func TestPushbackDetector_DetectAllEmpty(t *testing.T) {
	detector := NewPushbackDetector(nil)

	assert.Empty(t, detector.DetectAll(context.Background(), ""))
	assert.Empty(t, detector.DetectAll(context.Background(), "hello there"))
}

func TestPushbackDetector_CaseInsensitive(t *testing.T) {
	detector := NewPushbackDetector(nil)

	signal := detector.Detect(context.Background(), "HURRY UP")
	require.NotNil(t, signal)
	assert.Equal(t, PushbackImpatience, signal.Type)
}

package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestCensor_Apply(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	censor, err := NewCensor([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{"Simple word and space preservation", "The badger is here", "The ****** is here", []string{"badger"}},
		{"Multiple occurrences", "badger badger badger", "****** ****** ******", []string{"badger", "badger", "badger"}},
		{"Leet speak and internal punctuation", "Look at B.4.d.g.€r !", "Look at ********** !", []string{"badger"}},
		{"Uppercase and extreme noise", "S-N-A-K-E is a B.A.D.G.E.R", "********* is a ***********", []string{"snake", "badger"}},
		{"Accents", "Un été avec un badger", "Un été avec un ******", []string{"badger"}},
		{"Nothing to censor", "pixel chat is amazing", "pixel chat is amazing", nil},
		{"Empty string", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := censor.Apply(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestCensor_NilLetsEverythingThrough(t *testing.T) {
	req := require.New(t)

	// Given a dictionary made only of noise
	censor, err := NewCensor([]string{"...", ",,,", ""}, replacementChar, slog.Default())
	req.NoError(err)
	req.Nil(censor)

	content, words := censor.Apply("Hello badger ...")
	req.Equal("Hello badger ...", content)
	req.Nil(words)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected command
		wantErr  bool
	}{
		{"Plain text", "hello there", command{kind: sendText, argument: "hello there"}, false},
		{"Photo with size and caption", "/photo cat.png 12 my cat", command{kind: sendPhotoFile, argument: "cat.png", pixelSize: 12, caption: "my cat"}, false},
		{"Photo url without size", "/photourl http://x/y.jpg look", command{kind: sendPhotoURL, argument: "http://x/y.jpg", caption: "look"}, false},
		{"Accept", "/accept 1234", command{kind: acceptPhoto, argument: "1234"}, false},
		{"Quit", "/quit", command{kind: quit}, false},
		{"Accept without id", "/accept", command{}, true},
		{"Unknown", "/dance", command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			cmd, err := parseCommand(tt.line)
			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, cmd)
		})
	}
}

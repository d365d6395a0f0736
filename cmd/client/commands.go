package main

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	sendText commandKind = iota
	sendPhotoFile
	sendPhotoURL
	acceptPhoto
	quit
)

type command struct {
	kind      commandKind
	argument  string
	pixelSize int
	caption   string
}

// parseCommand reads one input line.
// "/photo <path> [pixelSize] [caption]", "/photourl <url> [pixelSize] [caption]",
// "/accept <id>" and "/quit"; anything else is sent as text.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return command{kind: sendText, argument: line}, nil
	}
	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/quit":
		return command{kind: quit}, nil
	case "/accept":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /accept <id>")
		}
		return command{kind: acceptPhoto, argument: fields[1]}, nil
	case "/photo", "/photourl":
		if len(fields) < 2 {
			return command{}, fmt.Errorf("usage: %s <source> [pixelSize] [caption]", fields[0])
		}
		cmd := command{kind: sendPhotoFile, argument: fields[1]}
		if fields[0] == "/photourl" {
			cmd.kind = sendPhotoURL
		}
		rest := fields[2:]
		if len(rest) > 0 {
			if size, err := strconv.Atoi(rest[0]); err == nil {
				cmd.pixelSize = size
				rest = rest[1:]
			}
		}
		cmd.caption = strings.Join(rest, " ")
		return cmd, nil
	default:
		return command{}, fmt.Errorf("unknown command %s", fields[0])
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"pixel-chat/domain/chat"
	"pixel-chat/domain/event"

	"github.com/gookit/color"
)

// console prints new messages and approvals as views arrive.
// Views are whole snapshots, so it remembers what it already printed.
type console struct {
	out  io.Writer
	self string

	mu      sync.Mutex
	printed map[string]chat.Visibility
	percent int
}

func newConsole(out io.Writer, self string) *console {
	return &console{out: out, self: self, printed: make(map[string]chat.Visibility), percent: -1}
}

func (c *console) Consume(_ context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev := e.(type) {
	case event.ViewReplaced:
		for _, message := range ev.View.Messages() {
			previous, seen := c.printed[message.ID]
			if seen && previous == message.Visibility {
				continue
			}
			c.printed[message.ID] = message.Visibility
			c.render(message, seen)
		}
	case event.StatusChanged:
		progress := ev.Status.Progress
		switch {
		case progress.Active && progress.Percent != c.percent:
			c.percent = progress.Percent
			fmt.Fprintln(c.out, color.FgGray.Render(fmt.Sprintf("uploading... %d%%", progress.Percent)))
		case !progress.Active:
			c.percent = -1
		}
	}
	return nil
}

func (c *console) render(message chat.ChatMessage, unlocked bool) {
	at := message.CreatedAt.Local().Format("15:04:05")
	name := color.FgCyan.Render(message.Nickname)
	if message.AuthorID == c.self {
		name = color.FgGreen.Render(message.Nickname + " (you)")
	}

	if !message.IsPhoto() {
		fmt.Fprintf(c.out, "%s %s: %s\n", color.FgGray.Render(at), name, message.Text)
		return
	}
	if unlocked {
		fmt.Fprintf(c.out, "%s %s\n", color.FgGray.Render(at), color.FgYellow.Render("photo "+message.ID+" unlocked: "+message.PhotoRef))
		return
	}
	state := color.FgMagenta.Render(fmt.Sprintf("[pixelated x%d, /accept %s]", message.PixelSize, message.ID))
	if message.IsVisible() {
		state = color.FgYellow.Render("[unlocked]")
	} else if message.AuthorID == c.self {
		state = color.FgMagenta.Render("[waiting for someone to accept]")
	}
	fmt.Fprintf(c.out, "%s %s: %s %s", color.FgGray.Render(at), name, message.PhotoRef, state)
	if message.Text != "" {
		fmt.Fprintf(c.out, " %s", message.Text)
	}
	fmt.Fprintln(c.out)
}

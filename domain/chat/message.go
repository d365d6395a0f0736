// Package chat contains core concepts of the single-room chat.
// Messages are immutable once created, except the visibility of photos
// which only moves from Pending to Approved.
package chat

import (
	"time"
)

type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
)

type Visibility string

const (
	Pending  Visibility = "pending"
	Approved Visibility = "approved"
)

const (
	DefaultNickname  = "Anon"
	DefaultPixelSize = 10
)

// ChatMessage is the unit of the log.
// PhotoRef always points at the published (pixelated) blob.
type ChatMessage struct {
	ID         string
	AuthorID   string
	Nickname   string
	Kind       Kind
	Text       string
	PhotoRef   string
	Visibility Visibility
	PixelSize  int
	CreatedAt  time.Time
}

func (m ChatMessage) IsPhoto() bool {
	return m.Kind == KindPhoto
}

// IsVisible reports whether the content may be rendered at full fidelity.
// Text is always visible.
func (m ChatMessage) IsVisible() bool {
	return m.Kind == KindText || m.Visibility == Approved
}

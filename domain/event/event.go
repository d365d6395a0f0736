package event

import (
	"pixel-chat/domain/chat"
)

type Type string

const (
	ViewReplacedType  Type = "view"
	StatusChangedType Type = "status"
)

// Event is what the Synchronizer fans out to UI sinks.
type Event interface {
	EventType() Type
}

// ViewReplaced carries the whole ordered snapshot, never a delta.
type ViewReplaced struct {
	View chat.View
}

func (ViewReplaced) EventType() Type { return ViewReplacedType }

type StatusChanged struct {
	Status chat.Status
}

func (StatusChanged) EventType() Type { return StatusChangedType }

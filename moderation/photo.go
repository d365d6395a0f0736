// Package moderation holds the visibility rules of the room.
// Photos start Pending and can only ever move to Approved.
package moderation

import (
	"pixel-chat/domain/chat"
)

type Transition int

const (
	NoChange Transition = iota
	Transitioned
)

// InitialVisibility is the visibility a freshly created message starts with.
func InitialVisibility(kind chat.Kind) chat.Visibility {
	if kind == chat.KindPhoto {
		return chat.Pending
	}
	return chat.Approved
}

// Accept unlocks a pending photo.
// Approved photos and text messages are returned untouched: calling Accept
// twice is the same as calling it once.
// There is no check on who accepts.
func Accept(message chat.ChatMessage) (chat.ChatMessage, Transition) {
	if !message.IsPhoto() || message.Visibility == chat.Approved {
		return message, NoChange
	}
	message.Visibility = chat.Approved
	return message, Transitioned
}

// Reconcile merges what was observed earlier with what the store now reports.
// Approved is sticky.
func Reconcile(previous, recorded chat.Visibility) chat.Visibility {
	if previous == chat.Approved || recorded == chat.Approved {
		return chat.Approved
	}
	return chat.Pending
}

package moderation

import (
	"testing"
	"time"

	"pixel-chat/domain/chat"

	"github.com/stretchr/testify/require"
)

func pendingPhoto() chat.ChatMessage {
	return chat.ChatMessage{
		ID:         "42",
		AuthorID:   "p1",
		Nickname:   "Alice",
		Kind:       chat.KindPhoto,
		PhotoRef:   "http://blobs/photos/p1/1.jpg",
		Visibility: chat.Pending,
		PixelSize:  10,
		CreatedAt:  time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAccept_PendingPhotoIsApproved(t *testing.T) {
	req := require.New(t)
	photo := pendingPhoto()

	accepted, transition := Accept(photo)

	req.Equal(Transitioned, transition)
	req.Equal(chat.Approved, accepted.Visibility)
	req.Equal(photo.PhotoRef, accepted.PhotoRef)
	// The input value is left alone
	req.Equal(chat.Pending, photo.Visibility)
}

func TestAccept_IsIdempotent(t *testing.T) {
	req := require.New(t)

	once, _ := Accept(pendingPhoto())
	twice, transition := Accept(once)

	req.Equal(NoChange, transition)
	req.Equal(once, twice)
}

func TestAccept_TextIsNoOp(t *testing.T) {
	req := require.New(t)
	text := chat.ChatMessage{ID: "1", Kind: chat.KindText, Text: "hello", Visibility: chat.Approved}

	out, transition := Accept(text)

	req.Equal(NoChange, transition)
	req.Equal(text, out)
}

func TestReconcile_ApprovedNeverGoesBack(t *testing.T) {
	tests := []struct {
		name     string
		previous chat.Visibility
		recorded chat.Visibility
		expected chat.Visibility
	}{
		{"unknown then pending", "", chat.Pending, chat.Pending},
		{"pending then pending", chat.Pending, chat.Pending, chat.Pending},
		{"pending then approved", chat.Pending, chat.Approved, chat.Approved},
		{"approved then pending", chat.Approved, chat.Pending, chat.Approved},
		{"approved then approved", chat.Approved, chat.Approved, chat.Approved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Reconcile(tt.previous, tt.recorded))
		})
	}
}

func TestInitialVisibility(t *testing.T) {
	req := require.New(t)
	req.Equal(chat.Pending, InitialVisibility(chat.KindPhoto))
	req.Equal(chat.Approved, InitialVisibility(chat.KindText))
}

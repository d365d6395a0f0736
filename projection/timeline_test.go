package projection

import (
	"log/slog"
	"testing"
	"time"

	"pixel-chat/contract"
	"pixel-chat/domain/chat"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func textRecord(id string, offset int, text string) contract.Record {
	return contract.Record{
		ID:        id,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
		Fields:    TextFields(chat.Session{ParticipantID: "p1", Nickname: "Alice"}, text),
	}
}

func photoRecord(id string, offset int) contract.Record {
	return contract.Record{
		ID:        id,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
		Fields:    PhotoFields(chat.Session{ParticipantID: "p2"}, "http://blobs/"+id+".jpg", 10, ""),
	}
}

func ids(view chat.View) []string {
	return lo.Map(view.Messages(), func(m chat.ChatMessage, _ int) string { return m.ID })
}

func TestTimeline_OrdersByCreatedAt(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(slog.Default())

	// Given records with createdAt [3,1,2] in arbitrary order
	view := timeline.Replace([]contract.Record{
		textRecord("c", 3, "third"),
		textRecord("a", 1, "first"),
		textRecord("b", 2, "second"),
	})

	req.Equal([]string{"a", "b", "c"}, ids(view))
}

func TestTimeline_TiesKeepStoreOrder(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(slog.Default())

	view := timeline.Replace([]contract.Record{
		textRecord("x", 1, "one"),
		textRecord("z", 1, "two"),
		textRecord("y", 1, "three"),
	})

	req.Equal([]string{"x", "z", "y"}, ids(view))
}

func TestTimeline_Normalization(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(slog.Default())

	view := timeline.Replace([]contract.Record{
		textRecord("t1", 1, "hello"),
		photoRecord("p1", 2),
		// Legacy record without type is text
		{ID: "legacy", CreatedAt: base.Add(3 * time.Second), Fields: map[string]any{"text": "old", "uid": "p9"}},
		// Malformed records are dropped
		{ID: "empty", CreatedAt: base.Add(4 * time.Second), Fields: map[string]any{"type": "text", "text": "   "}},
		{ID: "nophoto", CreatedAt: base.Add(5 * time.Second), Fields: map[string]any{"type": "photo", "uid": "p9"}},
		{ID: "noauthor", CreatedAt: base.Add(6 * time.Second), Fields: map[string]any{"type": "text", "text": "who?"}},
		{ID: "video", CreatedAt: base.Add(7 * time.Second), Fields: map[string]any{"type": "video", "text": "clip", "uid": "p9"}},
	})

	req.Equal([]string{"t1", "p1", "legacy"}, ids(view))

	text, ok := view.Find("t1")
	req.True(ok)
	req.Equal(chat.KindText, text.Kind)
	req.Equal("p1", text.AuthorID)
	req.Equal("Alice", text.Nickname)
	req.True(text.IsVisible())

	photo, ok := view.Find("p1")
	req.True(ok)
	req.Equal(chat.KindPhoto, photo.Kind)
	req.Equal(chat.Pending, photo.Visibility)
	req.Equal(10, photo.PixelSize)
	req.Equal(chat.DefaultNickname, photo.Nickname)
	req.False(photo.IsVisible())
}

func TestTimeline_PixelSizeFromProtobufNumbers(t *testing.T) {
	req := require.New(t)
	record := photoRecord("p1", 1)
	record.Fields[FieldPixelSize] = float64(12)

	message, ok := ToMessage(record)
	req.True(ok)
	req.Equal(12, message.PixelSize)
}

func TestTimeline_ApprovalIsSticky(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(slog.Default())

	approved := photoRecord("p1", 1)
	for k, v := range ApprovalFields() {
		approved.Fields[k] = v
	}
	view := timeline.Replace([]contract.Record{approved})
	message, _ := view.Find("p1")
	req.Equal(chat.Approved, message.Visibility)

	// When a later snapshot reports the photo as pending again
	view = timeline.Replace([]contract.Record{photoRecord("p1", 1)})

	// Then it stays approved
	message, _ = view.Find("p1")
	req.Equal(chat.Approved, message.Visibility)
	req.Equal(view, timeline.View())
}

func TestTimeline_SnapshotsAreIndependent(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(slog.Default())

	first := timeline.Replace([]contract.Record{textRecord("a", 1, "hello")})
	second := timeline.Replace([]contract.Record{textRecord("a", 1, "hello"), textRecord("b", 2, "again")})

	req.Equal(1, first.Len())
	req.Equal(2, second.Len())

	messages := first.Messages()
	messages[0].Text = "mutated"
	again, _ := first.Find("a")
	req.Equal("hello", again.Text)
}

// Package projection builds the local timeline from store snapshots.
// Handles normalization, ordering and sticky approvals.
// Does not write to the store or talk to the UI directly.
package projection

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"pixel-chat/contract"
	"pixel-chat/domain/chat"
	"pixel-chat/moderation"
)

// Record field names, shared with the writers.
const (
	FieldAuthor     = "uid"
	FieldNickname   = "nickname"
	FieldText       = "text"
	FieldPhotoURL   = "photoURL"
	FieldType       = "type"
	FieldIsUnlocked = "isUnlocked"
	FieldStatus     = "status"
	FieldPixelSize  = "pixelSize"
)

// Timeline holds the last view and the approvals already observed.
type Timeline struct {
	mu       sync.Mutex
	approved map[string]struct{}
	view     chat.View
	log      *slog.Logger
}

func NewTimeline(log *slog.Logger) *Timeline {
	return &Timeline{
		approved: make(map[string]struct{}),
		view:     chat.NewView(nil),
		log:      log,
	}
}

// Replace builds a new view from a full snapshot and makes it current.
func (t *Timeline) Replace(records []contract.Record) chat.View {
	t.mu.Lock()
	defer t.mu.Unlock()

	messages := make([]chat.ChatMessage, 0, len(records))
	for _, record := range records {
		message, ok := ToMessage(record)
		if !ok {
			t.log.Debug("Skipping malformed record", "id", record.ID)
			continue
		}
		if message.IsPhoto() {
			previous := chat.Pending
			if _, seen := t.approved[message.ID]; seen {
				previous = chat.Approved
			}
			message.Visibility = moderation.Reconcile(previous, message.Visibility)
			if message.Visibility == chat.Approved {
				t.approved[message.ID] = struct{}{}
			}
		}
		messages = append(messages, message)
	}

	// Stable: equal timestamps keep the store's insertion order
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	t.view = chat.NewView(messages)
	return t.view
}

func (t *Timeline) View() chat.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// ToMessage maps a raw record onto a ChatMessage.
// Missing type means text. Records without an author or with an unknown type
// are malformed, as are texts without content and photos without a locator.
func ToMessage(record contract.Record) (chat.ChatMessage, bool) {
	fields := record.Fields
	message := chat.ChatMessage{
		ID:        record.ID,
		AuthorID:  stringField(fields, FieldAuthor),
		Nickname:  stringField(fields, FieldNickname),
		Text:      stringField(fields, FieldText),
		PhotoRef:  stringField(fields, FieldPhotoURL),
		PixelSize: intField(fields, FieldPixelSize),
		CreatedAt: record.CreatedAt,
	}

	if message.AuthorID == "" {
		return chat.ChatMessage{}, false
	}

	switch chat.Kind(stringField(fields, FieldType)) {
	case chat.KindPhoto:
		message.Kind = chat.KindPhoto
		message.Visibility = chat.Pending
		if boolField(fields, FieldIsUnlocked) || chat.Visibility(stringField(fields, FieldStatus)) == chat.Approved {
			message.Visibility = chat.Approved
		}
		return message, message.PhotoRef != ""
	case chat.KindText, "":
		message.Kind = chat.KindText
		message.Visibility = chat.Approved
		return message, strings.TrimSpace(message.Text) != ""
	default:
		return chat.ChatMessage{}, false
	}
}

// TextFields is the record written for a text message.
func TextFields(session chat.Session, text string) map[string]any {
	return map[string]any{
		FieldAuthor:     session.ParticipantID,
		FieldNickname:   session.DisplayName(),
		FieldText:       text,
		FieldType:       string(chat.KindText),
		FieldIsUnlocked: true,
		FieldStatus:     string(chat.Approved),
	}
}

// PhotoFields is the record written once the photo blob is stored.
func PhotoFields(session chat.Session, photoRef string, pixelSize int, caption string) map[string]any {
	fields := map[string]any{
		FieldAuthor:     session.ParticipantID,
		FieldNickname:   session.DisplayName(),
		FieldPhotoURL:   photoRef,
		FieldType:       string(chat.KindPhoto),
		FieldIsUnlocked: false,
		FieldStatus:     string(moderation.InitialVisibility(chat.KindPhoto)),
		FieldPixelSize:  pixelSize,
	}
	if caption != "" {
		fields[FieldText] = caption
	}
	return fields
}

// ApprovalFields is the update persisted by an accept.
func ApprovalFields() map[string]any {
	return map[string]any{
		FieldIsUnlocked: true,
		FieldStatus:     string(chat.Approved),
	}
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func boolField(fields map[string]any, key string) bool {
	value, _ := fields[key].(bool)
	return value
}

// intField accepts the float64 protobuf Struct gives back as well as plain ints.
func intField(fields map[string]any, key string) int {
	switch value := fields[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	default:
		return 0
	}
}

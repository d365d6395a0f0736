package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"pixel-chat/contract"
	"pixel-chat/domain/chat"
	"pixel-chat/domain/event"
	"pixel-chat/errors"
	"pixel-chat/moderation"
	"pixel-chat/pixelate"
	"pixel-chat/projection"
	"pixel-chat/upload"

	"github.com/go-playground/validator/v10"
)

type ISynchronizer interface {
	Subscribe(ctx context.Context) *Subscription
	View() chat.View
	SendText(ctx context.Context, text string) (string, error)
	SendPhoto(ctx context.Context, cmd chat.SendPhotoCommand) (string, error)
	AcceptPhoto(ctx context.Context, messageID string) error
	Status() chat.Status
	AddSink(sink contract.EventSink)
}

// PhotoUploader degrades a photo and moves it to blob storage.
type PhotoUploader interface {
	Prepare(ctx context.Context, src pixelate.Source, pixelSize int) (pixelate.Blob, error)
	Start(ctx context.Context, ownerID string, blob pixelate.Blob) *upload.Transfer
}

var _ ISynchronizer = (*Synchronizer)(nil)

// Synchronizer owns the local view of the room and mediates every write.
// Views only change when the store delivers a snapshot: a send is visible
// once the store echoes it back.
type Synchronizer struct {
	session  chat.Session
	store    contract.DocumentStore
	uploader PhotoUploader
	censor   *moderation.Censor
	validate *validator.Validate
	timeline *projection.Timeline
	log      *slog.Logger

	mu        sync.Mutex
	sending   int
	transfers []*upload.Transfer
	sinks     []contract.EventSink
}

// NewSynchronizer binds a session to a store. censor may be nil.
func NewSynchronizer(
	session chat.Session,
	store contract.DocumentStore,
	uploader PhotoUploader,
	censor *moderation.Censor,
	log *slog.Logger,
) *Synchronizer {
	return &Synchronizer{
		session:  session,
		store:    store,
		uploader: uploader,
		censor:   censor,
		validate: validator.New(),
		timeline: projection.NewTimeline(log),
		log:      log,
	}
}

func (s *Synchronizer) AddSink(sink contract.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Synchronizer) View() chat.View {
	return s.timeline.View()
}

// Subscribe starts following the store. Each snapshot replaces the view
// wholesale. The subscription ends on Cancel or on the first stream error,
// which is not retried here.
func (s *Synchronizer) Subscribe(ctx context.Context) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		views:  make(chan chat.View, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		// done closes first so that Err is final once Views is drained
		defer close(sub.views)
		defer close(sub.done)

		err := s.store.Subscribe(subCtx, func(records []contract.Record) {
			view := s.timeline.Replace(records)
			sub.offer(view)
			s.publish(subCtx, event.ViewReplaced{View: view})
		})
		if subCtx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("stream ended")
		}
		if !errors.Is(err, errors.ErrSyncStream) {
			err = fmt.Errorf("%w: %w", errors.ErrSyncStream, err)
		}
		s.log.Error("Subscription ended", "error", err)
		sub.err = err
	}()
	return sub
}

// SendText appends a text message authored by the session participant.
func (s *Synchronizer) SendText(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.ErrEmptyMessage
	}
	if !s.session.IsBound() {
		return "", fmt.Errorf("%w: %w", errors.ErrEmptyMessage, errors.ErrNotAuthenticated)
	}

	s.beginSend(ctx)
	defer s.endSend(ctx)

	id, err := s.store.Append(ctx, projection.TextFields(s.session, s.clean(trimmed)))
	if err != nil {
		return "", storeWriteError(err)
	}
	s.log.Debug("Text sent", "id", id, "participant_id", s.session.ParticipantID)
	return id, nil
}

// SendPhoto pixelates, uploads and then appends a pending photo.
// Nothing is appended unless the upload committed.
func (s *Synchronizer) SendPhoto(ctx context.Context, cmd chat.SendPhotoCommand) (string, error) {
	if cmd.Source.IsEmpty() {
		return "", errors.ErrNoSource
	}
	if !s.session.IsBound() {
		return "", errors.ErrNotAuthenticated
	}
	if cmd.PixelSize == 0 {
		cmd.PixelSize = chat.DefaultPixelSize
	}
	if err := s.validatePhoto(cmd); err != nil {
		return "", err
	}

	s.beginSend(ctx)
	defer s.endSend(ctx)

	blob, err := s.uploader.Prepare(ctx, pixelate.Source{
		Data:        cmd.Source.Data,
		ContentType: cmd.Source.ContentType,
		Locator:     cmd.Source.Locator,
	}, cmd.PixelSize)
	if err != nil {
		return "", err
	}

	transfer := s.uploader.Start(ctx, s.session.ParticipantID, blob)
	s.track(transfer)
	for range transfer.Progress() {
		s.publishStatus(ctx)
	}
	locator, err := transfer.Wait()
	s.untrack(transfer)
	s.publishStatus(ctx)
	if err != nil {
		return "", err
	}

	caption := strings.TrimSpace(cmd.Caption)
	if caption != "" {
		caption = s.clean(caption)
	}
	id, err := s.store.Append(ctx, projection.PhotoFields(s.session, locator, cmd.PixelSize, caption))
	if err != nil {
		return "", storeWriteError(err)
	}
	s.log.Info("Photo sent", "id", id, "participant_id", s.session.ParticipantID, "pixel_size", cmd.PixelSize)
	return id, nil
}

// AcceptPhoto approves a pending photo. Accepting a text message or an
// already approved photo writes nothing. Anyone may accept.
func (s *Synchronizer) AcceptPhoto(ctx context.Context, messageID string) error {
	if err := s.validate.Struct(chat.AcceptPhotoCommand{MessageID: messageID}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrNotFound, err)
	}
	message, ok := s.timeline.View().Find(messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, errors.ErrNotFound)
	}
	if _, transition := moderation.Accept(message); transition == moderation.NoChange {
		return nil
	}
	if err := s.store.Update(ctx, messageID, projection.ApprovalFields()); err != nil {
		return storeWriteError(err)
	}
	s.log.Info("Photo accepted", "id", messageID, "by", s.session.ParticipantID)
	return nil
}

// Status reports whether a send is running and the progress of the most
// recent upload still in flight.
func (s *Synchronizer) Status() chat.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := chat.Status{IsSending: s.sending > 0}
	for _, transfer := range slices.Backward(s.transfers) {
		if percent, ok := transfer.Current(); ok {
			status.Progress = chat.UploadProgress{Percent: percent, Active: true}
			break
		}
	}
	return status
}

func (s *Synchronizer) validatePhoto(cmd chat.SendPhotoCommand) error {
	err := s.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if stderrors.As(err, &invalid) {
		for _, field := range invalid {
			if field.Field() == "PixelSize" {
				return fmt.Errorf("%w: got %d", errors.ErrInvalidPixelSize, cmd.PixelSize)
			}
		}
	}
	return fmt.Errorf("invalid photo: %w", err)
}

func (s *Synchronizer) clean(text string) string {
	cleaned, hits := s.censor.Apply(text)
	if len(hits) > 0 {
		s.log.Info("Outgoing text censored", "participant_id", s.session.ParticipantID, "words", hits)
	}
	return cleaned
}

func (s *Synchronizer) beginSend(ctx context.Context) {
	s.mu.Lock()
	s.sending++
	s.mu.Unlock()
	s.publishStatus(ctx)
}

func (s *Synchronizer) endSend(ctx context.Context) {
	s.mu.Lock()
	s.sending--
	s.mu.Unlock()
	s.publishStatus(ctx)
}

func (s *Synchronizer) track(transfer *upload.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, transfer)
}

func (s *Synchronizer) untrack(transfer *upload.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = slices.DeleteFunc(s.transfers, func(t *upload.Transfer) bool { return t == transfer })
}

func (s *Synchronizer) publishStatus(ctx context.Context) {
	s.publish(ctx, event.StatusChanged{Status: s.Status()})
}

func (s *Synchronizer) publish(ctx context.Context, e event.Event) {
	s.mu.Lock()
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()
	for _, sink := range sinks {
		if err := sink.Consume(context.WithoutCancel(ctx), e); err != nil {
			s.log.Warn("Sink rejected event", "type", e.EventType(), "error", err)
		}
	}
}

func storeWriteError(err error) error {
	if errors.Is(err, errors.ErrStoreWrite) {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
}

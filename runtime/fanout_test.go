package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pixel-chat/domain/chat"
	"pixel-chat/domain/event"
	"pixel-chat/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_DeliversToEverySink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	first, second := mocks.NewMockEventSink(ctrl), mocks.NewMockEventSink(ctrl)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { wg.Wait(); close(done) }()

	status := event.StatusChanged{Status: chat.Status{IsSending: true}}
	first.EXPECT().Consume(gomock.Any(), status).DoAndReturn(func(context.Context, event.Event) error {
		wg.Done()
		return nil
	})
	// A failing sink does not stop the others
	second.EXPECT().Consume(gomock.Any(), status).DoAndReturn(func(context.Context, event.Event) error {
		wg.Done()
		return fmt.Errorf("closed")
	})

	fanout := NewEventFanout(log, time.Second).Add(first, second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	req.NoError(fanout.Consume(ctx, status))
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("events were not fanned out")
	}
}

func TestEventFanout_KeepsLatestOfEachType(t *testing.T) {
	req := require.New(t)
	fanout := NewEventFanout(slog.Default(), time.Second)

	// Given events queued while no worker runs
	for i := 0; i < 5; i++ {
		_ = fanout.Consume(context.Background(), event.StatusChanged{Status: chat.Status{Progress: chat.UploadProgress{Percent: i * 10, Active: true}}})
	}
	view := event.ViewReplaced{View: chat.NewView(nil)}
	_ = fanout.Consume(context.Background(), view)
	final := event.StatusChanged{Status: chat.Status{}}
	_ = fanout.Consume(context.Background(), final)

	events := fanout.take()
	req.Equal([]event.Event{final, view}, events)
	req.Empty(fanout.take())
}

package services

import (
	"context"

	"pixel-chat/domain/chat"
)

// Subscription is a live feed of views.
// Views is latest-wins: a slow reader skips intermediate snapshots but
// always ends up with the newest one.
type Subscription struct {
	views  chan chat.View
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func (s *Subscription) Views() <-chan chat.View {
	return s.views
}

// Done is closed once the subscription has ended, just before Views is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is nil while running and after Cancel, ErrSyncStream otherwise.
// It is final as soon as Views is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Cancel stops the subscription and waits until no more views can be delivered.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// offer is only called from the subscription goroutine.
func (s *Subscription) offer(view chat.View) {
	select {
	case <-s.views:
	default:
	}
	s.views <- view
}

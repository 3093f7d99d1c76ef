package realtime

import (
	"context"

	log "github.com/sirupsen/logrus"

	"prism-board/client/board"
	"prism-board/domain"
)

// Sync merges the events of a project's room into its store.
type Sync struct {
	store   *board.Store
	fetcher board.Fetcher
	logger  *log.Logger
	ctx     context.Context
	sub     *Subscription
}

// Attach subscribes store to its project room on bus. Refetch requests are
// served with fetcher under ctx.
func Attach(ctx context.Context, bus *Bus, store *board.Store, fetcher board.Fetcher, logger *log.Logger) (*Sync, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Sync{store: store, fetcher: fetcher, logger: logger, ctx: ctx}
	sub, err := bus.Subscribe(domain.Room(store.ProjectID()), s.handle)
	if err != nil {
		return nil, err
	}
	s.sub = sub
	return s, nil
}

func (s *Sync) handle(ev domain.Event) {
	if ev.ProjectID != s.store.ProjectID() {
		s.logger.WithFields(log.Fields{"type": ev.Type, "project": ev.ProjectID}).Debug("dropping event without matching project")
		return
	}
	if ev.Type == domain.BoardRefetchNeeded {
		if err := s.store.Load(s.ctx, s.fetcher); err != nil {
			s.logger.WithError(err).Error("refetch board")
		}
		return
	}
	s.store.ApplyRemoteEvent(ev)
}

// Close unsubscribes from the project room.
func (s *Sync) Close() {
	s.sub.Close()
}

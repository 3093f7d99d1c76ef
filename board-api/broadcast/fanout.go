package broadcast

import (
	"context"
	"errors"

	"prism-board/domain"
)

// Publisher delivers one board event.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Fanout publishes to every target. A failing target does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package board

import (
	"context"
	"errors"
	"sync"

	"prism-board/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	columns  map[string]domain.Column
	items    map[string]domain.Item
	tasks    map[string]domain.Task
	applied  []domain.Changeset
	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columns: map[string]domain.Column{},
		items:   map[string]domain.Item{},
		tasks:   map[string]domain.Task{},
	}
}

func (f *fakeStore) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b domain.Board
	for _, c := range f.columns {
		if c.ProjectID == projectID {
			b.Columns = append(b.Columns, c)
		}
	}
	for _, it := range f.items {
		if it.ProjectID == projectID {
			b.Items = append(b.Items, it)
		}
	}
	return b, nil
}

func (f *fakeStore) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) FindColumn(ctx context.Context, id string) (domain.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[id]
	if !ok {
		return domain.Column{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) FindItem(ctx context.Context, id string) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound
	}
	return it, nil
}

func (f *fakeStore) FindTask(ctx context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) Apply(ctx context.Context, projectID string, cs domain.Changeset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	for _, c := range cs.PutColumns {
		f.columns[c.ID] = c
	}
	for _, it := range cs.PutItems {
		f.items[it.ID] = it
	}
	for _, t := range cs.PutTasks {
		f.tasks[t.ID] = t
	}
	for _, id := range cs.DeleteColumns {
		delete(f.columns, id)
	}
	for _, id := range cs.DeleteItems {
		delete(f.items, id)
	}
	for _, id := range cs.DeleteTasks {
		delete(f.tasks, id)
	}
	f.applied = append(f.applied, cs)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) ofType(kind string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fakeIntents struct {
	seen map[string]bool
	err  error
}

func (f *fakeIntents) Add(ctx context.Context, projectID, intentID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[intentID] {
		return false, nil
	}
	f.seen[intentID] = true
	return true, nil
}

func (f *fakeIntents) Remove(ctx context.Context, projectID, intentID string) error {
	delete(f.seen, intentID)
	return nil
}

var errApply = errors.New("apply failed")

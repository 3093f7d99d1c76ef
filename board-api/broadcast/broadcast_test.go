package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

func TestRedisPublisherUsesProjectRoom(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()
	ctx := context.Background()

	pubsub := rc.Subscribe(ctx, "project_p1")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	done := make(chan string, 1)
	go func() {
		msg := <-pubsub.Channel()
		done <- msg.Payload
	}()

	ev := domain.Event{Type: domain.ItemDeleted, ProjectID: "p1", ItemID: "i1"}
	if err := NewRedisPublisher(rc).Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case pl := <-done:
		var got domain.Event
		if err := json.Unmarshal([]byte(pl), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != domain.ItemDeleted || got.ItemID != "i1" || got.ProjectID != "p1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

type fakeQueue struct {
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePublisherEnqueuesJSON(t *testing.T) {
	q := &fakeQueue{}
	p := &QueuePublisher{queue: q}
	if err := p.Publish(context.Background(), domain.Event{Type: domain.ColumnDeleted, ProjectID: "p1", ColumnID: "c1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.messages))
	}
	var got domain.Event
	if err := json.Unmarshal([]byte(q.messages[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ColumnID != "c1" {
		t.Fatalf("unexpected event %+v", got)
	}
}

type recordingPublisher struct {
	calls int
	err   error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	r.calls++
	return r.err
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}
	err := Fanout{first, nil, second}.Publish(context.Background(), domain.Event{Type: domain.TaskCreated, ProjectID: "p1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected both publishers called, got %d and %d", first.calls, second.calls)
	}
}

package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"eventpress/internal/dto"
)

type fakeHandler struct {
	err      error
	messages []dto.NotificationMessage
}

func (f *fakeHandler) Notify(_ context.Context, msg dto.NotificationMessage) error {
	f.messages = append(f.messages, msg)
	return f.err
}

type fakeConsumer struct {
	handler func([]byte) error
}

func (f *fakeConsumer) Consume(handler func([]byte) error) error {
	f.handler = handler
	return nil
}

func encode(t *testing.T, msg dto.NotificationMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandle(t *testing.T) {
	handler := &fakeHandler{}
	r := NewReader(&fakeConsumer{}, handler)
	ctx := context.Background()

	want := dto.NotificationMessage{Type: dto.MessageConfirmation, EventID: "e1", RegistrationID: "r1"}
	if err := r.handle(ctx, encode(t, want)); err != nil {
		t.Fatal(err)
	}
	if len(handler.messages) != 1 || handler.messages[0] != want {
		t.Errorf("unexpected handled messages %+v", handler.messages)
	}

	if err := r.handle(ctx, []byte("{")); err != nil {
		t.Errorf("malformed message must be dropped, got %v", err)
	}
	if len(handler.messages) != 1 {
		t.Error("malformed message reached the handler")
	}
}

func TestHandlePropagatesRetry(t *testing.T) {
	handler := &fakeHandler{err: errors.New("smtp down")}
	r := NewReader(&fakeConsumer{}, handler)

	body := encode(t, dto.NotificationMessage{Type: dto.MessageConfirmation, EventID: "e1", RegistrationID: "r1"})
	if err := r.handle(context.Background(), body); err == nil {
		t.Error("expected error so the delivery is retried")
	}
}

type signalConsumer struct {
	registered chan struct{}
}

func (s *signalConsumer) Consume(func([]byte) error) error {
	close(s.registered)
	return nil
}

func TestStartStop(t *testing.T) {
	consumer := &signalConsumer{registered: make(chan struct{})}
	r := NewReader(consumer, &fakeHandler{})

	r.Start(context.Background())
	select {
	case <-consumer.registered:
	case <-time.After(time.Second):
		t.Fatal("reader did not register its handler")
	}

	r.Stop()
}

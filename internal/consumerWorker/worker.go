package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"eventpress/internal/dto"
)

// Consumer is the consume side of rabbit.Client.
type Consumer interface {
	Consume(handler func([]byte) error) error
}

// Handler delivers one notification; notify.Deliverer satisfies it. An
// error asks for a later retry.
type Handler interface {
	Notify(ctx context.Context, msg dto.NotificationMessage) error
}

// Reader delivers queued notifications through the mailer.
type Reader struct {
	RMQ     Consumer
	handler Handler
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewReader(rmq Consumer, handler Handler) *Reader {
	return &Reader{
		RMQ:     rmq,
		handler: handler,
		done:    make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("RabbitMQ Reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(func(body []byte) error { return r.handle(cctx, body) }); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("RabbitMQ Reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reader) handle(ctx context.Context, body []byte) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().Err(err).Int("bytes", len(body)).Msg("Dropping malformed notification message")
		return nil
	}

	zlog.Logger.Info().
		Str("type", msg.Type).
		Str("event_id", msg.EventID).
		Msg("Received notification from RabbitMQ")
	return r.handler.Notify(ctx, msg)
}

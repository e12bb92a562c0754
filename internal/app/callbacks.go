package app

import (
	"context"
	"log/slog"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// Builtins returns the callbacks every binary registers: "log" writes the
// message to the log and acks it, "noop" acks without doing anything.
func Builtins(log *slog.Logger) []queue.Callback {
	log = log.With(logger.Component("callback"))
	return []queue.Callback{
		queue.CallbackFunc("log", func(ctx context.Context, msg *queue.Message) error {
			log.InfoContext(ctx, "message received",
				logger.VHost(msg.VHost),
				logger.Queue(msg.Queue),
				logger.MessageKey(msg.Key),
				logger.RetryCount(msg.SyncCount),
				slog.String("payload", string(msg.Payload)))
			return nil
		}),
		queue.CallbackFunc("noop", func(context.Context, *queue.Message) error { return nil }),
	}
}

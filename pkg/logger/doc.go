// Package logger builds the *slog.Logger used by every queue component.
//
// New assembles a text or JSON handler from functional options, attaches
// static attributes and wraps the result in LogHandlerDecorator, which pulls
// additional attributes out of context.Context on every record. Workers use
// WithAttrs to stamp their identity (virtual host, queue, worker index) onto
// the context handed to callbacks, so business code logging with
// InfoContext gets the same fields without any plumbing.
//
// FromConfig maps the LOG_* / APP_ENV environment variables onto options:
//
//	var cfg logger.Config
//	_ = config.Load(&cfg)
//	log := logger.FromConfig(cfg, "queued")
//	logger.SetAsDefault(log)
//
// Attribute helpers in attr.go keep key names consistent across packages
// (vhost, queue, message_id, worker_index, ...).
package logger

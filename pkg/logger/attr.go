package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// VHost records the virtual host under the key "vhost".
func VHost(name string) slog.Attr {
	return slog.String("vhost", name)
}

// Queue records the queue name under the key "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// QueueGroup records the queue group under the key "group".
func QueueGroup(name string) slog.Attr {
	return slog.String("group", name)
}

// MessageID records the message identifier under the key "message_id".
func MessageID(id string) slog.Attr {
	return slog.String("message_id", id)
}

// MessageKey records the caller supplied message key under the key "message_key".
func MessageKey(key string) slog.Attr {
	return slog.String("message_key", key)
}

// WorkerIndex records the worker slot index under the key "worker_index".
func WorkerIndex(i int) slog.Attr {
	return slog.Int("worker_index", i)
}

// PID records an OS process id under the key "pid".
func PID(pid int) slog.Attr {
	return slog.Int("pid", pid)
}

// RetryCount records the failed attempt count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Callback records the callback name under the key "callback".
func Callback(name string) slog.Attr {
	return slog.String("callback", name)
}

package queue

import (
	"context"
	"fmt"
	"path"
	"reflect"
)

type (
	// Callback is the business logic bound to a queue. Returning nil acks
	// the message, RetryAfter(d) retries it after d, any other error (or a
	// panic) retries it after the default backoff. Delivery is at least
	// once, so callbacks must tolerate seeing a message again.
	Callback interface {
		Name() string
		Handle(ctx context.Context, msg *Message) error
	}

	// HandlerFunc receives the decoded payload next to the raw message, which
	// carries the retry metadata (SyncCount, Attempt).
	HandlerFunc[T any] func(ctx context.Context, payload T, msg *Message) error
)

// NewCallback builds a callback that JSON-decodes the payload into T. The
// callback is named after T as "pkg.Type", pointers dereferenced, which is
// the name a topology file refers to it by.
func NewCallback[T any](handler HandlerFunc[T]) Callback {
	return NewNamedCallback(payloadName[T](), handler)
}

func payloadName[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return path.Base(t.PkgPath()) + "." + t.Name()
}

// NewNamedCallback is NewCallback with an explicit name.
func NewNamedCallback[T any](name string, handler HandlerFunc[T]) Callback {
	return &typedCallback[T]{
		name:    name,
		handler: handler,
	}
}

// CallbackFunc adapts a plain function working on the raw message.
func CallbackFunc(name string, fn func(ctx context.Context, msg *Message) error) Callback {
	return &funcCallback{
		name: name,
		fn:   fn,
	}
}

type typedCallback[T any] struct {
	name    string
	handler HandlerFunc[T]
}

func (h *typedCallback[T]) Name() string {
	return h.name
}

func (h *typedCallback[T]) Handle(ctx context.Context, msg *Message) error {
	var t T
	if err := msg.Decode(&t); err != nil {
		return fmt.Errorf("decode payload for %s: %w", h.name, err)
	}
	return h.handler(ctx, t, msg)
}

type funcCallback struct {
	name string
	fn   func(ctx context.Context, msg *Message) error
}

func (h *funcCallback) Name() string {
	return h.name
}

func (h *funcCallback) Handle(ctx context.Context, msg *Message) error {
	return h.fn(ctx, msg)
}

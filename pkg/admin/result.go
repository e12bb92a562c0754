package admin

import (
	"errors"
	"net/http"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/supervisor"
)

// Result is the outcome of every administrative operation. Code follows
// HTTP status semantics so the JSON API can pass it through unchanged.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Code >= 200 && r.Code < 300 }

func ok(data any) Result {
	return Result{Code: http.StatusOK, Message: "ok", Data: data}
}

// fail maps err onto a rejected result.
func fail(err error) Result {
	return Result{Code: codeOf(err), Message: err.Error()}
}

func codeOf(err error) int {
	switch {
	case errors.Is(err, queue.ErrUnknownVHost),
		errors.Is(err, supervisor.ErrUnknownQueue),
		errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrUnknownCallback),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, queue.ErrInvalidTarget),
		errors.Is(err, queue.ErrQueueNameRequired),
		errors.Is(err, queue.ErrPayloadNil),
		errors.Is(err, queue.ErrPayloadMarshal),
		errors.Is(err, supervisor.ErrLauncherMissing),
		errors.Is(err, ErrNoControl):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrLocked),
		errors.Is(err, queue.ErrLeaseLost):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

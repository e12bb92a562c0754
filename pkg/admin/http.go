package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// maxBodySize caps enqueue payloads accepted over HTTP.
const maxBodySize = 1 << 20

// defaultPeek is the peek count when the request names none.
const defaultPeek = 10

// Handler returns the JSON API of svc. Every response body is a Result and
// the HTTP status equals Result.Code.
//
//	GET    /vhosts/{vhost}/queues/{queue}/length
//	GET    /vhosts/{vhost}/queues/{queue}/peek?n=
//	POST   /vhosts/{vhost}/queues/{queue}/messages?key=&delay=
//	GET    /vhosts/{vhost}/messages?queue=&group=&key=&lock=&level=&offset=&limit=
//	GET    /vhosts/{vhost}/messages/{id}
//	DELETE /vhosts/{vhost}/messages/{id}
//	POST   /vhosts/{vhost}/messages/{id}/{reset|lock|unlock|ack|exec}
//	GET    /supervisor
//	POST   /supervisor/{start|stop|restart}  (stop?force=true)
//	GET    /workers?vhost=&queue=
func Handler(svc *Service, log *slog.Logger) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	h := &handler{svc: svc, log: log.With(logger.Component("admin-http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/vhosts/{vhost}", func(r chi.Router) {
		r.Get("/queues/{queue}/length", h.length)
		r.Get("/queues/{queue}/peek", h.peek)
		r.Post("/queues/{queue}/messages", h.enqueue)

		r.Get("/messages", h.list)
		r.Get("/messages/{id}", h.get)
		r.Delete("/messages/{id}", h.delete)
		r.Post("/messages/{id}/reset", h.reset)
		r.Post("/messages/{id}/lock", h.lock)
		r.Post("/messages/{id}/unlock", h.unlock)
		r.Post("/messages/{id}/ack", h.ack)
		r.Post("/messages/{id}/exec", h.exec)
	})

	r.Get("/supervisor", h.supervisorStatus)
	r.Post("/supervisor/start", h.supervisorStart)
	r.Post("/supervisor/stop", h.supervisorStop)
	r.Post("/supervisor/restart", h.supervisorRestart)
	r.Get("/workers", h.workers)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Result{Code: http.StatusNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, Result{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	return r
}

type handler struct {
	svc *Service
	log *slog.Logger
}

func (h *handler) length(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Length(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "queue")))
}

func (h *handler) peek(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", defaultPeek)
	if err != nil {
		writeResult(w, fail(err))
		return
	}
	writeResult(w, h.svc.Peek(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "queue"), n))
}

func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeResult(w, fail(fmt.Errorf("%w: read body: %v", ErrInvalidArgument, err)))
		return
	}

	target := chi.URLParam(r, "queue")
	q := r.URL.Query()
	if key, delay := q.Get("key"), q.Get("delay"); key != "" || delay != "" {
		target += ":" + key
		if delay != "" {
			target += ":" + delay
		}
	}
	writeResult(w, h.svc.Enqueue(r.Context(), chi.URLParam(r, "vhost"), target, body))
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeResult(w, fail(err))
		return
	}
	writeResult(w, h.svc.List(r.Context(), chi.URLParam(r, "vhost"), filter))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Get(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Delete(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Reset(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) lock(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Lock(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Unlock(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id"), r.URL.Query().Get("lease")))
}

func (h *handler) ack(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Ack(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) exec(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.Exec(r.Context(), chi.URLParam(r, "vhost"), chi.URLParam(r, "id")))
}

func (h *handler) supervisorStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.SupervisorStatus(r.Context()))
}

func (h *handler) supervisorStart(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.SupervisorStart(r.Context()))
}

func (h *handler) supervisorStop(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		writeResult(w, fail(err))
		return
	}
	writeResult(w, h.svc.SupervisorStop(r.Context(), force))
}

func (h *handler) supervisorRestart(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.svc.SupervisorRestart(r.Context()))
}

func (h *handler) workers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeResult(w, h.svc.WorkerStatus(r.Context(), q.Get("vhost"), q.Get("queue")))
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.InfoContext(r.Context(), "admin request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			logger.Duration(time.Since(start)))
	})
}

func parseFilter(r *http.Request) (queue.Filter, error) {
	q := r.URL.Query()
	f := queue.Filter{
		Queue:       q.Get("queue"),
		Group:       q.Get("group"),
		KeyContains: q.Get("key"),
		Lock:        queue.LockState(q.Get("lock")),
	}

	var err error
	if f.Offset, err = intParam(r, "offset", 0); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(r, "limit", queue.DefaultPageLimit); err != nil {
		return f, err
	}
	if q.Has("level") {
		level, err := intParam(r, "level", 0)
		if err != nil {
			return f, err
		}
		f.RetryLevel = &level
	}
	return f, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidArgument, name, raw)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalidArgument, name, raw)
	}
	return b, nil
}

func writeResult(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Code)
	_ = json.NewEncoder(w).Encode(res)
}

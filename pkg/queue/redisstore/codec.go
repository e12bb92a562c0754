package redisstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

var errBadReply = errors.New("redisstore: unexpected script reply")

// decodeReply turns a flat HGETALL reply into a message.
func decodeReply(res any) (*queue.Message, error) {
	flat, ok := res.([]any)
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: %T", errBadReply, res)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return decodeHash(fields)
}

// decodeStatusReply handles scripts that answer 0 for a missing message,
// 1 for a failed condition and the hash otherwise.
func decodeStatusReply(res any, condErr error) (*queue.Message, error) {
	if code, ok := res.(int64); ok {
		if code == 0 {
			return nil, queue.ErrNotFound
		}
		return nil, condErr
	}
	return decodeReply(res)
}

func decodeHash(f map[string]string) (*queue.Message, error) {
	m := &queue.Message{
		ID:      f["id"],
		VHost:   f["vhost"],
		Group:   f["group"],
		Queue:   f["queue"],
		Key:     f["key"],
		Payload: json.RawMessage(f["payload"]),
		Lease:   f["lease"],
	}

	var err error
	if m.SyncCount, err = strconv.Atoi(f["sync"]); err != nil {
		return nil, fmt.Errorf("%w: sync: %w", errBadReply, err)
	}
	for name, dst := range map[string]*time.Time{
		"visible":  &m.VisibleAt,
		"enqueued": &m.EnqueuedAt,
		"created":  &m.CreatedAt,
		"updated":  &m.UpdatedAt,
	} {
		if *dst, err = parseMillis(f[name]); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errBadReply, name, err)
		}
	}
	if raw := f["claimed"]; raw != "" {
		t, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: claimed: %w", errBadReply, err)
		}
		m.ClaimedAt = &t
	}
	return m, nil
}

func parseMillis(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(n).UTC(), nil
}

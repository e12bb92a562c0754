package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/redis"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "queue"

// Store is a queue.Storage bound to one virtual host.
type Store struct {
	client       goredis.UniversalClient
	keys         keyspace
	leaseTimeout time.Duration
	now          func() time.Time
	scanBatch    int64
	ownsClient   bool
}

var _ queue.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keys.prefix = prefix
		}
	}
}

// WithLeaseTimeout sets how long a claim stays valid.
func WithLeaseTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.leaseTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithScanBatchSize sets the SCAN COUNT hint used by Purge.
func WithScanBatchSize(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanBatch = n
		}
	}
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() Option {
	return func(s *Store) {
		s.ownsClient = true
	}
}

// New returns a store for vhost on top of client.
func New(client goredis.UniversalClient, vhost string, opts ...Option) *Store {
	if vhost == "" {
		vhost = queue.DefaultVHost
	}
	s := &Store{
		client:       client,
		keys:         keyspace{prefix: DefaultKeyPrefix, vhost: vhost},
		leaseTimeout: queue.DefaultLeaseTimeout,
		now:          time.Now,
		scanBatch:    500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the millisecond precision stored in hashes.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *Store) Enqueue(ctx context.Context, msg *queue.Message, delay time.Duration) (*queue.Message, error) {
	if msg == nil {
		return nil, queue.ErrPayloadNil
	}
	payload := string(msg.Payload)
	if payload == "" {
		payload = "null"
	}

	now := s.clock()
	res, err := enqueueScript.Run(ctx, s.client,
		[]string{s.keys.message(msg.ID), s.keys.queues()},
		msg.ID, s.keys.vhost, msg.Group, msg.Queue, msg.Key, payload,
		ms(now), ms(now.Add(max(delay, 0))), s.keys.base(msg.Group, msg.Queue),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: enqueue %s: %w", msg.ID, err)
	}
	return decodeReply(res)
}

func (s *Store) Claim(ctx context.Context, group, queueName string) (*queue.Message, error) {
	now := s.clock()
	base := s.keys.base(group, queueName)
	res, err := claimScript.Run(ctx, s.client,
		[]string{delayedKey(base), readyKey(base), claimedKey(base)},
		ms(now), uuid.NewString(), ms(now.Add(-s.leaseTimeout)), s.keys.messagePrefix(),
	).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, queue.ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: claim %s/%s: %w", group, queueName, err)
	}
	return decodeReply(res)
}

func (s *Store) Ack(ctx context.Context, id, lease string) (bool, error) {
	if lease == "" {
		return false, nil
	}
	n, err := ackScript.Run(ctx, s.client, []string{s.keys.message(id)}, id, lease).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: ack %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Nack(ctx context.Context, id, lease string, delay time.Duration) (bool, error) {
	if lease == "" {
		return false, nil
	}
	now := s.clock()
	n, err := nackScript.Run(ctx, s.client, []string{s.keys.message(id)},
		id, lease, ms(now), ms(now.Add(max(delay, 0))),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: nack %s: %w", id, err)
	}
	return n == 1, nil
}

// Peek merges the head of the ready index with delayed messages that are
// already due and abandoned claims, without moving anything.
func (s *Store) Peek(ctx context.Context, group, queueName string, n int) ([]*queue.Message, error) {
	if n <= 0 {
		return []*queue.Message{}, nil
	}
	now := s.clock()
	base := s.keys.base(group, queueName)

	pipe := s.client.Pipeline()
	ready := pipe.ZRange(ctx, readyKey(base), 0, int64(n-1))
	due := pipe.ZRangeByScore(ctx, delayedKey(base), &goredis.ZRangeBy{Min: "-inf", Max: ms(now)})
	expired := pipe.ZRangeByScore(ctx, claimedKey(base), &goredis.ZRangeBy{Min: "-inf", Max: "(" + ms(now.Add(-s.leaseTimeout))})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisstore: peek %s/%s: %w", group, queueName, err)
	}

	ids := slices.Concat(ready.Val(), due.Val(), expired.Val())
	msgs, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*queue.Message, 0, n)
	for _, m := range msgs {
		if m.Claimable(now, s.leaseTimeout) {
			out = append(out, m)
		}
	}
	sortClaimOrder(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) Length(ctx context.Context, group, queueName string) (int, error) {
	base := s.keys.base(group, queueName)

	pipe := s.client.Pipeline()
	counts := []*goredis.IntCmd{
		pipe.ZCard(ctx, delayedKey(base)),
		pipe.ZCard(ctx, readyKey(base)),
		pipe.ZCard(ctx, claimedKey(base)),
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redisstore: length %s/%s: %w", group, queueName, err)
	}

	total := 0
	for _, c := range counts {
		total += int(c.Val())
	}
	return total, nil
}

func (s *Store) Clear(ctx context.Context, group, queueName string) (int, error) {
	base := s.keys.base(group, queueName)
	n, err := clearScript.Run(ctx, s.client,
		[]string{delayedKey(base), readyKey(base), claimedKey(base), s.keys.queues()},
		s.keys.messagePrefix(), base,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redisstore: clear %s/%s: %w", group, queueName, err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, filter queue.Filter) (*queue.Page, error) {
	filter = filter.Normalize()
	now := s.clock()

	ids, err := s.allIDs(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	matched := make([]*queue.Message, 0, len(msgs))
	for _, m := range msgs {
		if filter.Match(m, now, s.leaseTimeout) {
			matched = append(matched, m)
		}
	}
	sortClaimOrder(matched)

	page := &queue.Page{
		Items:  []*queue.Message{},
		Total:  len(matched),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Items = matched[filter.Offset:end]
	}
	return page, nil
}

func (s *Store) Get(ctx context.Context, id string) (*queue.Message, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.message(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, queue.ErrNotFound
	}
	return decodeHash(fields)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := deleteScript.Run(ctx, s.client, []string{s.keys.message(id)}, id).Int()
	if err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", id, err)
	}
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, id string) (*queue.Message, error) {
	res, err := resetScript.Run(ctx, s.client, []string{s.keys.message(id)}, id, ms(s.clock())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: reset %s: %w", id, err)
	}
	return decodeReply(res)
}

func (s *Store) Lock(ctx context.Context, id string) (*queue.Message, error) {
	now := s.clock()
	res, err := lockScript.Run(ctx, s.client, []string{s.keys.message(id)},
		id, ms(now), uuid.NewString(), ms(now.Add(-s.leaseTimeout)),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: lock %s: %w", id, err)
	}
	return decodeStatusReply(res, queue.ErrLocked)
}

func (s *Store) Unlock(ctx context.Context, id, lease string) (*queue.Message, error) {
	res, err := unlockScript.Run(ctx, s.client, []string{s.keys.message(id)},
		id, ms(s.clock()), lease,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: unlock %s: %w", id, err)
	}
	return decodeStatusReply(res, queue.ErrLeaseLost)
}

func (s *Store) ReleaseExpired(ctx context.Context) (int, error) {
	bases, err := s.client.SMembers(ctx, s.keys.queues()).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: release expired: %w", err)
	}

	now := s.clock()
	released := 0
	for _, base := range bases {
		n, err := releaseScript.Run(ctx, s.client, []string{claimedKey(base)},
			ms(now), ms(now.Add(-s.leaseTimeout)), s.keys.messagePrefix(), base,
		).Int()
		if err != nil {
			return released, fmt.Errorf("redisstore: release expired: %w", err)
		}
		released += n
	}
	return released, nil
}

// Purge deletes every key of the store's vhost and returns how many went.
func (s *Store) Purge(ctx context.Context) (int, error) {
	n, err := redis.DeleteMatching(ctx, s.client, s.keys.pattern(), s.scanBatch)
	if err != nil {
		return n, fmt.Errorf("redisstore: purge: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return redis.Healthcheck(s.client)(ctx)
}

func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// allIDs returns the ids of every indexed message of the vhost.
func (s *Store) allIDs(ctx context.Context) ([]string, error) {
	bases, err := s.client.SMembers(ctx, s.keys.queues()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list queues: %w", err)
	}
	if len(bases) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringSliceCmd, 0, len(bases)*3)
	for _, base := range bases {
		for _, key := range []string{delayedKey(base), readyKey(base), claimedKey(base)} {
			cmds = append(cmds, pipe.ZRange(ctx, key, 0, -1))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisstore: list ids: %w", err)
	}

	ids := make([]string, 0)
	for _, c := range cmds {
		ids = append(ids, c.Val()...)
	}
	return ids, nil
}

// fetch loads the hashes of ids, skipping ids whose hash is gone.
func (s *Store) fetch(ctx context.Context, ids []string) ([]*queue.Message, error) {
	if len(ids) == 0 {
		return []*queue.Message{}, nil
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.message(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisstore: fetch: %w", err)
	}

	out := make([]*queue.Message, 0, len(ids))
	for _, c := range cmds {
		if len(c.Val()) == 0 {
			continue
		}
		m, err := decodeHash(c.Val())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func sortClaimOrder(msgs []*queue.Message) {
	slices.SortFunc(msgs, func(a, b *queue.Message) int {
		if a.SyncCount != b.SyncCount {
			return a.SyncCount - b.SyncCount
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

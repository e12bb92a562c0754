package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/pg"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is a queue.Storage bound to one virtual host.
type Store struct {
	db           DB
	vhost        string
	leaseTimeout time.Duration
	now          func() time.Time
	closeDB      bool
}

var _ queue.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLeaseTimeout sets how long a claim stays valid.
func WithLeaseTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.leaseTimeout = d
		}
	}
}

// WithClock replaces time.Now. Every timestamp written comes from it.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOwnedPool makes Close close db when db has a Close method.
func WithOwnedPool() Option {
	return func(s *Store) {
		s.closeDB = true
	}
}

// New returns a store for vhost on top of db. The schema must already be
// migrated.
func New(db DB, vhost string, opts ...Option) *Store {
	if vhost == "" {
		vhost = queue.DefaultVHost
	}
	s := &Store{
		db:           db,
		vhost:        vhost,
		leaseTimeout: queue.DefaultLeaseTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock truncates to the column precision so values read back compare equal.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) Enqueue(ctx context.Context, msg *queue.Message, delay time.Duration) (*queue.Message, error) {
	if msg == nil {
		return nil, queue.ErrPayloadNil
	}
	payload := msg.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	now := s.clock()
	row := s.db.QueryRow(ctx, enqueueSQL,
		msg.ID, s.vhost, msg.Group, msg.Queue, msg.Key, string(payload),
		now.Add(max(delay, 0)), now,
	)
	stored, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("pgstore: enqueue %s: %w", msg.ID, err)
	}
	return stored, nil
}

func (s *Store) Claim(ctx context.Context, group, queueName string) (*queue.Message, error) {
	now := s.clock()
	row := s.db.QueryRow(ctx, claimSQL,
		s.vhost, group, queueName, uuid.NewString(), now, now.Add(-s.leaseTimeout),
	)
	m, err := scanMessage(row)
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: claim %s/%s: %w", group, queueName, err)
	}
	return m, nil
}

func (s *Store) Ack(ctx context.Context, id, lease string) (bool, error) {
	if lease == "" {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, ackSQL, s.vhost, id, lease)
	if err != nil {
		return false, fmt.Errorf("pgstore: ack %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Nack(ctx context.Context, id, lease string, delay time.Duration) (bool, error) {
	if lease == "" {
		return false, nil
	}
	now := s.clock()
	tag, err := s.db.Exec(ctx, nackSQL, s.vhost, id, lease, now.Add(max(delay, 0)), now)
	if err != nil {
		return false, fmt.Errorf("pgstore: nack %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Peek(ctx context.Context, group, queueName string, n int) ([]*queue.Message, error) {
	if n <= 0 {
		return []*queue.Message{}, nil
	}
	now := s.clock()
	rows, err := s.db.Query(ctx, peekSQL, s.vhost, group, queueName, now, now.Add(-s.leaseTimeout), n)
	if err != nil {
		return nil, fmt.Errorf("pgstore: peek %s/%s: %w", group, queueName, err)
	}
	return collectMessages(rows)
}

func (s *Store) Length(ctx context.Context, group, queueName string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, lengthSQL, s.vhost, group, queueName).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: length %s/%s: %w", group, queueName, err)
	}
	return n, nil
}

func (s *Store) Clear(ctx context.Context, group, queueName string) (int, error) {
	tag, err := s.db.Exec(ctx, clearSQL, s.vhost, group, queueName)
	if err != nil {
		return 0, fmt.Errorf("pgstore: clear %s/%s: %w", group, queueName, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) List(ctx context.Context, filter queue.Filter) (*queue.Page, error) {
	filter = filter.Normalize()
	q := buildListQuery(s.vhost, filter, s.clock(), s.leaseTimeout)

	page := &queue.Page{
		Items:  []*queue.Message{},
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}
	if err := s.db.QueryRow(ctx, q.count, q.args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("pgstore: list count: %w", err)
	}
	if page.Total == 0 || filter.Offset >= page.Total {
		return page, nil
	}

	rows, err := s.db.Query(ctx, q.page, append(q.args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	items, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

func (s *Store) Get(ctx context.Context, id string) (*queue.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, getSQL, s.vhost, id))
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteSQL, s.vhost, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, id string) (*queue.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, resetSQL, s.vhost, id, s.clock()))
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: reset %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) Lock(ctx context.Context, id string) (*queue.Message, error) {
	now := s.clock()
	m, err := scanMessage(s.db.QueryRow(ctx, lockSQL, s.vhost, id, uuid.NewString(), now, now.Add(-s.leaseTimeout)))
	if pg.IsNotFoundError(err) {
		return nil, s.missOr(ctx, id, queue.ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: lock %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) Unlock(ctx context.Context, id, lease string) (*queue.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, unlockSQL, s.vhost, id, s.clock(), lease))
	if pg.IsNotFoundError(err) {
		return nil, s.missOr(ctx, id, queue.ErrLeaseLost)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: unlock %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) ReleaseExpired(ctx context.Context) (int, error) {
	now := s.clock()
	tag, err := s.db.Exec(ctx, releaseExpiredSQL, s.vhost, now, now.Add(-s.leaseTimeout))
	if err != nil {
		return 0, fmt.Errorf("pgstore: release expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Purge deletes every message of the store's vhost.
func (s *Store) Purge(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, clearVHostSQL, s.vhost)
	if err != nil {
		return 0, fmt.Errorf("pgstore: purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return pg.Healthcheck(s.db)(ctx)
}

func (s *Store) Close() error {
	if !s.closeDB {
		return nil
	}
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

// missOr tells a missing row apart from a failed condition after a
// conditional UPDATE matched nothing.
func (s *Store) missOr(ctx context.Context, id string, condErr error) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_messages WHERE vhost = $1 AND id = $2)`, s.vhost, id).Scan(&exists)
	switch {
	case err != nil:
		return fmt.Errorf("pgstore: lookup %s: %w", id, err)
	case !exists:
		return queue.ErrNotFound
	default:
		return condErr
	}
}

func scanMessage(row pgx.Row) (*queue.Message, error) {
	var (
		m       queue.Message
		payload string
		lease   *string
	)
	err := row.Scan(
		&m.ID, &m.VHost, &m.Group, &m.Queue, &m.Key, &payload, &m.SyncCount,
		&m.VisibleAt, &lease, &m.ClaimedAt, &m.EnqueuedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Payload = []byte(payload)
	if lease != nil {
		m.Lease = *lease
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]*queue.Message, error) {
	defer rows.Close()

	out := make([]*queue.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: rows: %w", err)
	}
	return out, nil
}

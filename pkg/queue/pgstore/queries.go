package pgstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

const columns = `id, vhost, queue_group, queue_name, message_key, payload::text, sync_count,
	visible_at, lease, claimed_at, enqueued_at, created_at, updated_at`

const claimOrder = `ORDER BY sync_count, created_at, id`

const (
	enqueueSQL = `INSERT INTO queue_messages
	(id, vhost, queue_group, queue_name, message_key, payload, sync_count,
	 visible_at, lease, claimed_at, enqueued_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, 0, $7, NULL, NULL, $8, $8, $8)
ON CONFLICT (id) DO UPDATE SET
	payload = EXCLUDED.payload,
	sync_count = 0,
	visible_at = EXCLUDED.visible_at,
	lease = NULL,
	claimed_at = NULL,
	enqueued_at = EXCLUDED.enqueued_at,
	updated_at = EXCLUDED.updated_at
RETURNING ` + columns

	claimSQL = `UPDATE queue_messages SET lease = $4, claimed_at = $5, updated_at = $5
WHERE vhost = $1 AND id = (
	SELECT id FROM queue_messages
	WHERE vhost = $1 AND queue_group = $2 AND queue_name = $3
		AND visible_at <= $5
		AND (lease IS NULL OR claimed_at < $6)
	` + claimOrder + `
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + columns

	ackSQL = `DELETE FROM queue_messages WHERE vhost = $1 AND id = $2 AND lease = $3`

	nackSQL = `UPDATE queue_messages
SET lease = NULL, claimed_at = NULL, sync_count = sync_count + 1, visible_at = $4, updated_at = $5
WHERE vhost = $1 AND id = $2 AND lease = $3`

	peekSQL = `SELECT ` + columns + ` FROM queue_messages
WHERE vhost = $1 AND queue_group = $2 AND queue_name = $3
	AND visible_at <= $4
	AND (lease IS NULL OR claimed_at < $5)
` + claimOrder + `
LIMIT $6`

	lengthSQL = `SELECT count(*) FROM queue_messages WHERE vhost = $1 AND queue_group = $2 AND queue_name = $3`

	clearSQL = `DELETE FROM queue_messages WHERE vhost = $1 AND queue_group = $2 AND queue_name = $3`

	getSQL = `SELECT ` + columns + ` FROM queue_messages WHERE vhost = $1 AND id = $2`

	deleteSQL = `DELETE FROM queue_messages WHERE vhost = $1 AND id = $2`

	resetSQL = `UPDATE queue_messages
SET sync_count = 0, lease = NULL, claimed_at = NULL, visible_at = $3, updated_at = $3
WHERE vhost = $1 AND id = $2
RETURNING ` + columns

	lockSQL = `UPDATE queue_messages SET lease = $3, claimed_at = $4, updated_at = $4
WHERE vhost = $1 AND id = $2 AND (lease IS NULL OR claimed_at < $5)
RETURNING ` + columns

	unlockSQL = `UPDATE queue_messages SET lease = NULL, claimed_at = NULL, visible_at = $3, updated_at = $3
WHERE vhost = $1 AND id = $2 AND ($4 = '' OR lease = $4)
RETURNING ` + columns

	releaseExpiredSQL = `UPDATE queue_messages SET lease = NULL, claimed_at = NULL, updated_at = $2
WHERE vhost = $1 AND lease IS NOT NULL AND claimed_at < $3`

	clearVHostSQL = `DELETE FROM queue_messages WHERE vhost = $1`
)

// listQuery is a filtered List statement pair sharing one argument list.
// The page query appends LIMIT and OFFSET placeholders after args.
type listQuery struct {
	count string
	page  string
	args  []any
}

func buildListQuery(vhost string, f queue.Filter, now time.Time, leaseTimeout time.Duration) listQuery {
	args := []any{vhost}
	where := []string{"vhost = $1"}

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Group != "" {
		where = append(where, "queue_group = "+arg(f.Group))
	}
	if f.Queue != "" {
		where = append(where, "queue_name = "+arg(f.Queue))
	}
	if f.KeyContains != "" {
		where = append(where, "strpos(message_key, "+arg(f.KeyContains)+") > 0")
	}
	if f.RetryLevel != nil {
		where = append(where, "sync_count = "+arg(*f.RetryLevel))
	}
	switch f.Lock {
	case queue.LockLocked:
		where = append(where, "lease IS NOT NULL AND claimed_at >= "+arg(now.Add(-leaseTimeout)))
	case queue.LockUnlocked:
		where = append(where, "(lease IS NULL OR claimed_at < "+arg(now.Add(-leaseTimeout))+")")
	}

	cond := strings.Join(where, " AND ")
	q := listQuery{
		count: "SELECT count(*) FROM queue_messages WHERE " + cond,
		args:  args,
	}
	n := len(args)
	q.page = "SELECT " + columns + " FROM queue_messages WHERE " + cond + " " + claimOrder +
		" LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	return q
}

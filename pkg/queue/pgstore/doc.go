// Package pgstore implements queue.Storage on PostgreSQL.
//
// All virtual hosts share the queue_messages table and every statement is
// scoped by the vhost column, so one Store serves exactly one vhost. Claims
// use a conditional UPDATE over a SELECT ... FOR UPDATE SKIP LOCKED so that
// concurrent workers in different processes never receive the same message.
//
// The schema ships with the package:
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool, "billing")
package pgstore

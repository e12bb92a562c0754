// Package redis holds the connection helpers shared by the Redis queue
// backend: a retrying Connect, a Ping based Healthcheck and SCAN helpers for
// bulk key maintenance.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	probe := redis.Healthcheck(client)
//
// Errors are sentinels joined with the driver error, so errors.Is works on
// both.
package redis

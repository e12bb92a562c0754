package redis

import "errors"

// Errors returned while opening the connection behind a redis vhost.
var (
	ErrEmptyURL   = errors.New("redis vhost: connection URL is empty")
	ErrInvalidURL = errors.New("redis vhost: cannot parse connection URL")
	ErrNotReady   = errors.New("redis vhost: server did not answer PING in time")
	ErrUnhealthy  = errors.New("redis vhost: storage is unreachable")
)

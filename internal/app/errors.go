package app

import "errors"

var (
	ErrUnknownAdapter = errors.New("unknown storage adapter")
	ErrOpenVHost      = errors.New("failed to open virtual host storage")
	ErrMemoryVHost    = errors.New("memory vhost is only reachable inside the supervisor process")
)

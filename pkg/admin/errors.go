package admin

import "errors"

var (
	ErrEngineNil   = errors.New("admin: engine cannot be nil")
	ErrSourceNil   = errors.New("admin: topology source cannot be nil")
	ErrRegistryNil = errors.New("admin: callback registry cannot be nil")

	// ErrNoControl is returned by supervisor operations when the service was
	// built without a supervisor control.
	ErrNoControl = errors.New("supervisor control not configured")

	// ErrInvalidArgument marks malformed input: empty ids, bad counts or
	// unknown filter values.
	ErrInvalidArgument = errors.New("invalid argument")
)

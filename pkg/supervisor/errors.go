package supervisor

import "errors"

var (
	ErrEngineNil         = errors.New("supervisor: engine is nil")
	ErrSourceNil         = errors.New("supervisor: topology source is nil")
	ErrRegistryNil       = errors.New("supervisor: callback registry is nil")
	ErrInvalidTopology   = errors.New("supervisor: invalid topology")
	ErrUnknownCallback   = errors.New("supervisor: unknown callback")
	ErrUnknownQueue      = errors.New("supervisor: queue is not configured")
	ErrCallbackConflict  = errors.New("supervisor: callback already registered")
	ErrAlreadyRunning    = errors.New("supervisor: another supervisor is running")
	ErrNotStarted        = errors.New("supervisor: not started")
	ErrLauncherMissing   = errors.New("supervisor: no launcher configured")
	ErrTopologyRead      = errors.New("supervisor: failed to read topology")
)

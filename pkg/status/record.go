package status

import (
	"fmt"
	"time"
)

// Role tells supervisor and worker records apart.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleWorker     Role = "worker"
)

// Key addresses one record.
type Key struct {
	Role  Role
	VHost string
	Queue string
	Index int
}

// SupervisorKey is the key of the singleton supervisor record.
func SupervisorKey() Key {
	return Key{Role: RoleSupervisor}
}

// WorkerKey is the key of a worker slot record.
func WorkerKey(vhost, queue string, index int) Key {
	return Key{Role: RoleWorker, VHost: vhost, Queue: queue, Index: index}
}

func (k Key) String() string {
	if k.Role == RoleSupervisor {
		return string(RoleSupervisor)
	}
	return fmt.Sprintf("%s/%s/%s/%d", k.Role, k.VHost, k.Queue, k.Index)
}

// Record is the persisted state of one process or worker slot.
type Record struct {
	Role      Role      `json:"role"`
	VHost     string    `json:"vhost,omitempty"`
	Queue     string    `json:"queue,omitempty"`
	Index     int       `json:"index"`
	PID       int       `json:"pid"`
	Instance  string    `json:"instance,omitempty"`
	Busy      bool      `json:"busy"`
	Stopping  bool      `json:"stopping"`
	Force     bool      `json:"force"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the key the record is stored under.
func (r *Record) Key() Key {
	return Key{Role: r.Role, VHost: r.VHost, Queue: r.Queue, Index: r.Index}
}

func (r *Record) validate() error {
	switch r.Role {
	case RoleSupervisor:
		return nil
	case RoleWorker:
		if r.VHost == "" || r.Queue == "" || r.Index < 0 {
			return fmt.Errorf("%w: worker record needs vhost, queue and index", ErrInvalidRecord)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRecord, r.Role)
	}
}

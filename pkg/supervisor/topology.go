package supervisor

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// Topology is the desired state: which queues exist per vhost, how many
// workers each gets and which callback they run.
type Topology struct {
	VHosts    map[string]VHostSpec `yaml:"vhosts"`
	Schedules []ScheduleSpec       `yaml:"schedules"`

	// Version is a digest of the source document. Equal versions mean an
	// unchanged topology.
	Version uint64 `yaml:"-"`
}

// VHostSpec selects the backend of a vhost and lists its queues.
type VHostSpec struct {
	Adapter      string               `yaml:"adapter"`
	DSN          string               `yaml:"dsn"`
	KeyPrefix    string               `yaml:"key_prefix"`
	LeaseTimeout time.Duration        `yaml:"lease_timeout"`
	Queues       map[string]QueueSpec `yaml:"queues"`
}

// QueueSpec is the desired worker count and callback of one queue.
type QueueSpec struct {
	Workers  int    `yaml:"workers"`
	Callback string `yaml:"callback"`
	Group    string `yaml:"group"`
}

// ScheduleSpec declares a periodic message.
type ScheduleSpec struct {
	Name     string         `yaml:"name"`
	Schedule string         `yaml:"schedule"`
	VHost    string         `yaml:"vhost"`
	Group    string         `yaml:"group"`
	Queue    string         `yaml:"queue"`
	Payload  map[string]any `yaml:"payload"`
}

// ParseTopology expands ${VAR} references in data, decodes it and validates
// the result.
func ParseTopology(data []byte) (*Topology, error) {
	expanded := os.ExpandEnv(string(data))

	var t Topology
	if err := yaml.Unmarshal([]byte(expanded), &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	t.Version = xxhash.Sum64String(expanded)

	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Topology) normalize() error {
	if t.VHosts == nil {
		t.VHosts = map[string]VHostSpec{}
	}
	for name, vh := range t.VHosts {
		if name == "" {
			return fmt.Errorf("%w: empty vhost name", ErrInvalidTopology)
		}
		for qname, q := range vh.Queues {
			switch {
			case qname == "":
				return fmt.Errorf("%w: vhost %s: empty queue name", ErrInvalidTopology, name)
			case q.Workers < 0:
				return fmt.Errorf("%w: %s/%s: negative worker count", ErrInvalidTopology, name, qname)
			case q.Workers > 0 && q.Callback == "":
				return fmt.Errorf("%w: %s/%s: callback required", ErrInvalidTopology, name, qname)
			}
			if q.Group == "" {
				q.Group = queue.DefaultGroup
			}
			vh.Queues[qname] = q
		}
		t.VHosts[name] = vh
	}

	seen := make(map[string]bool, len(t.Schedules))
	for i, s := range t.Schedules {
		if s.Name == "" || s.Schedule == "" {
			return fmt.Errorf("%w: schedule #%d needs name and schedule", ErrInvalidTopology, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate schedule %q", ErrInvalidTopology, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// clone returns a copy sharing no maps or slices with t.
func (t *Topology) clone() *Topology {
	cp := *t
	if t.VHosts != nil {
		cp.VHosts = make(map[string]VHostSpec, len(t.VHosts))
		for name, vh := range t.VHosts {
			vh.Queues = maps.Clone(vh.Queues)
			cp.VHosts[name] = vh
		}
	}
	if t.Schedules != nil {
		cp.Schedules = make([]ScheduleSpec, len(t.Schedules))
		for i, s := range t.Schedules {
			s.Payload = maps.Clone(s.Payload)
			cp.Schedules[i] = s
		}
	}
	return &cp
}

// Queue returns the spec of vhost/name or ErrUnknownQueue.
func (t *Topology) Queue(vhost, name string) (QueueSpec, error) {
	if vh, ok := t.VHosts[vhost]; ok {
		if q, ok := vh.Queues[name]; ok {
			return q, nil
		}
	}
	return QueueSpec{}, fmt.Errorf("%w: %s/%s", ErrUnknownQueue, vhost, name)
}

// VHostNames returns the configured vhosts, sorted.
func (t *Topology) VHostNames() []string {
	return slices.Sorted(maps.Keys(t.VHosts))
}

// Slot identifies one worker position.
type Slot struct {
	VHost string
	Queue string
	Index int
}

// desired lists every slot the topology asks for along with its spec.
func (t *Topology) desired() map[Slot]QueueSpec {
	out := make(map[Slot]QueueSpec)
	for vhost, vh := range t.VHosts {
		for name, q := range vh.Queues {
			for i := range q.Workers {
				out[Slot{VHost: vhost, Queue: name, Index: i}] = q
			}
		}
	}
	return out
}

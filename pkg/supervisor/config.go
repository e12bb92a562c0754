package supervisor

import "time"

// Config holds supervisor settings read from the environment.
type Config struct {
	CheckInterval   time.Duration `env:"SUPERVISOR_CHECK_INTERVAL" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SUPERVISOR_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	RunDir          string        `env:"SUPERVISOR_RUN_DIR" envDefault:"./run"`
	TopologyFile    string        `env:"SUPERVISOR_TOPOLOGY_FILE" envDefault:"./topology.yaml"`
}

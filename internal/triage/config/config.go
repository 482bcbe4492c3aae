package config

import (
	"time"

	"github.com/yungbote/triage-backend/internal/verdict"
)

// Duration accepts "5s"-style strings or integer nanoseconds in JSON and YAML.
type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes"`
	CORSOrigins       []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

type TriageConfig struct {
	Thresholds verdict.Thresholds `json:"thresholds" yaml:"thresholds"`
}

type SupervisorConfig struct {
	Thresholds   verdict.Thresholds `json:"thresholds" yaml:"thresholds"`
	AgentTimeout Duration           `json:"agent_timeout" yaml:"agent_timeout"`
}

type GNNConfig struct {
	// Checkpoint is a .json or .json.gz model file.
	Checkpoint string `json:"checkpoint" yaml:"checkpoint"`
	// Hops is used when the checkpoint does not carry its own.
	Hops int `json:"hops" yaml:"hops"`
	// FeatureDim, when set, rejects checkpoints with a different in_dim.
	FeatureDim int  `json:"feature_dim,omitempty" yaml:"feature_dim,omitempty"`
	Preload    bool `json:"preload" yaml:"preload"`
}

type GraphConfig struct {
	// FixturePath serves the graph from a local JSON file instead of neo4j.
	FixturePath string `json:"fixture_path,omitempty" yaml:"fixture_path,omitempty"`
}

type RedisConfig struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password       string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB             int      `json:"db,omitempty" yaml:"db,omitempty"`
	IdempotencyTTL Duration `json:"idempotency_ttl" yaml:"idempotency_ttl"`
}

type VerdictLogConfig struct {
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type Config struct {
	Env        string           `json:"env" yaml:"env"`
	Version    string           `json:"version,omitempty" yaml:"version,omitempty"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Triage     TriageConfig     `json:"triage" yaml:"triage"`
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor"`
	GNN        GNNConfig        `json:"gnn" yaml:"gnn"`
	Graph      GraphConfig      `json:"graph" yaml:"graph"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	VerdictLog VerdictLogConfig `json:"verdict_log" yaml:"verdict_log"`
}

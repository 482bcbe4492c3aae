package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/triage-backend/internal/platform/envutil"
	"github.com/yungbote/triage-backend/internal/verdict"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got yaml kind %d", node.Kind)
	}
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil && node.Tag == "!!int" {
		d.Duration = time.Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   10 << 20,
		},
		Triage:     TriageConfig{Thresholds: verdict.Thresholds{TruePositive: 80, Escalate: 25}},
		Supervisor: SupervisorConfig{Thresholds: verdict.Thresholds{TruePositive: 80, Escalate: 50}},
		GNN: GNNConfig{
			Checkpoint: "models/rgcn_nodgl.json",
			Hops:       5,
			Preload:    true,
		},
		Redis: RedisConfig{IdempotencyTTL: Duration{Duration: 24 * time.Hour}},
	}
}

// Load resolves configuration from defaults, an optional JSON/YAML file
// (TRIAGE_CONFIG_PATH or ./config/config.{json,yaml,yml}) and env overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("TRIAGE_CONFIG_PATH"))
	if cfgPath == "" {
		cfgPath = discover()
	}
	if cfgPath != "" {
		if err := readFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func discover() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(wd, "config", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// readFile decodes on top of cfg so unset keys keep their defaults.
func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("TRIAGE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.GNN.Checkpoint = envutil.String("RGCN_CKPT", cfg.GNN.Checkpoint)
	cfg.GNN.Hops = envutil.Int("RGCN_HOPS", cfg.GNN.Hops)
	cfg.GNN.FeatureDim = envutil.Int("GRAPH_FEATURE_DIM", cfg.GNN.FeatureDim)
	cfg.GNN.Preload = envutil.Bool("RGCN_PRELOAD", cfg.GNN.Preload)
	cfg.Graph.FixturePath = envutil.String("GRAPH_FIXTURE_PATH", cfg.Graph.FixturePath)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.VerdictLog.DSN = envutil.String("VERDICT_DB_DSN", cfg.VerdictLog.DSN)
	cfg.Supervisor.AgentTimeout.Duration = envutil.Duration("SUPERVISOR_AGENT_TIMEOUT", cfg.Supervisor.AgentTimeout.Duration)
	if v := envutil.String("CORS_ALLOWED_ORIGINS", ""); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 10 << 20
	}
	if strings.TrimSpace(cfg.GNN.Checkpoint) == "" {
		return errors.New("gnn.checkpoint is required")
	}
	if cfg.GNN.Hops < 0 || cfg.GNN.Hops > 10 {
		return fmt.Errorf("gnn.hops=%d out of range [0,10]", cfg.GNN.Hops)
	}
	if cfg.GNN.FeatureDim < 0 {
		return fmt.Errorf("gnn.feature_dim=%d must not be negative", cfg.GNN.FeatureDim)
	}
	if cfg.Supervisor.AgentTimeout.Duration < 0 {
		return errors.New("supervisor.agent_timeout must not be negative")
	}
	if err := checkThresholds("triage", cfg.Triage.Thresholds); err != nil {
		return err
	}
	if err := checkThresholds("supervisor", cfg.Supervisor.Thresholds); err != nil {
		return err
	}
	return nil
}

func checkThresholds(name string, th verdict.Thresholds) error {
	if th.Escalate < 0 || th.TruePositive > 100 || th.Escalate >= th.TruePositive {
		return fmt.Errorf("%s.thresholds: need 0 <= escalate < true_positive <= 100, got %v/%v", name, th.Escalate, th.TruePositive)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

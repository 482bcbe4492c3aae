package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestSanitizeAlertFields(t *testing.T) {
	log, logs := observed()

	log.With("component", "triage").Info("scored",
		"alert_id", "a-1",
		"api_key", "k",
		"process_user", "SYSTEM",
		"src_ip", "10.0.0.1",
		"payload", map[string]interface{}{"device.ip": "10.0.0.2", "severity_id": 5},
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	f := entries[0].ContextMap()
	if f["component"] != "triage" || f["alert_id"] != "a-1" {
		t.Fatalf("plain fields changed: %v", f)
	}
	if f["api_key"] != "[REDACTED]" {
		t.Fatalf("api_key=%v", f["api_key"])
	}
	for _, k := range []string{"process_user", "src_ip"} {
		if s, _ := f[k].(string); !strings.HasPrefix(s, "hash:") {
			t.Fatalf("%s=%v", k, f[k])
		}
	}
	payload, _ := f["payload"].(map[string]interface{})
	if s, _ := payload["device.ip"].(string); !strings.HasPrefix(s, "hash:") || payload["severity_id"] != 5 {
		t.Fatalf("payload=%v", payload)
	}
}

func TestHashValueIsStable(t *testing.T) {
	a, b := hashValue("SYSTEM"), hashValue("SYSTEM")
	if a != b || a == hashValue("root") || len(a) != len("hash:")+12 {
		t.Fatalf("a=%s b=%s", a, b)
	}
	if hashValue(nil) != "" {
		t.Fatalf("nil should hash to empty")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	log.Info("dropped", "k", "v")
	log.Sync()
	if log.With("k", "v") == nil {
		t.Fatalf("With on nil logger returned nil")
	}
}

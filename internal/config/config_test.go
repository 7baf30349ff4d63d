package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParse_Full(t *testing.T) {
	yaml := `
trace: true
disassemble: true
log_level: debug
history:
  path: /tmp/loxvm-history.db
  limit: 20
server:
  addr: "0.0.0.0:9000"
`
	cfg, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Trace || !cfg.Disassemble {
		t.Errorf("trace = %v, disassemble = %v, want both true", cfg.Trace, cfg.Disassemble)
	}
	if cfg.Level() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", cfg.Level())
	}
	if cfg.History.Path != "/tmp/loxvm-history.db" {
		t.Errorf("history.path = %q", cfg.History.Path)
	}
	if cfg.History.Limit != 20 {
		t.Errorf("history.limit = %d, want 20", cfg.History.Limit)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("trace: false\n"), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("log_level = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.History.Limit != DefaultHistoryLimit {
		t.Errorf("history.limit = %d, want %d", cfg.History.Limit, DefaultHistoryLimit)
	}
	if cfg.History.Path != "" {
		t.Errorf("history.path = %q, want empty", cfg.History.Path)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("server.addr = %q, want %q", cfg.Server.Addr, DefaultServerAddr)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad level", "log_level: loud\n", "log_level"},
		{"negative limit", "history:\n  limit: -1\n", "history.limit"},
		{"addr without port", "server:\n  addr: localhost\n", "server.addr"},
		{"not yaml", "trace: [unclosed\n", "parsing test.yaml"},
		{"wrong type", "trace: maybe\n", "parsing test.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "test.yaml")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Trace || cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("disassemble: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Disassemble {
		t.Error("expected disassemble to be true")
	}
}

func TestFind_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(want, []byte("trace: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Find(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// TempDir may sit behind a symlink, so compare resolved paths.
	gotEval, _ := filepath.EvalSymlinks(got)
	wantEval, _ := filepath.EvalSymlinks(want)
	if gotEval != wantEval {
		t.Errorf("Find = %q, want %q", got, want)
	}
}

func TestFind_YmlAlternative(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loxvm.yml"), []byte("trace: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Find(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(got) != "loxvm.yml" {
		t.Errorf("Find = %q, want loxvm.yml", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{TraceEnvVar: "1"}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if !cfg.Trace {
		t.Error("LOXVM_TRACE=1 should enable tracing")
	}

	cfg = Default()
	cfg.ApplyEnv(func(string) string { return "0" })
	if cfg.Trace {
		t.Error("LOXVM_TRACE=0 should not enable tracing")
	}
}

package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("melt", pflag.ContinueOnError)
	BindFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t, "--root", t.TempDir()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Message != DefaultMessage {
		t.Errorf("Message = %q", cfg.Message)
	}
	if cfg.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v", cfg.LockTimeout)
	}
	if cfg.Commit || cfg.Fuzzy || cfg.Partial {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()
	yaml := "fuzzy: true\nmessage: from file\nlog-level: debug\n"
	if err := os.WriteFile(filepath.Join(root, ".melt.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("MELT_MESSAGE", "from env")
	t.Setenv("MELT_LOCK_TIMEOUT", "2s")

	cfg, err := Load(newFlags(t, "--root", root, "--log-level", "error"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Fuzzy {
		t.Error("fuzzy should come from the config file")
	}
	if cfg.Message != "from env" {
		t.Errorf("Message = %q, want env value", cfg.Message)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want flag value", cfg.LogLevel)
	}
	if cfg.LockTimeout != 2*time.Second {
		t.Errorf("LockTimeout = %v, want 2s", cfg.LockTimeout)
	}
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{Root: root, LogLevel: "info"}},
		{name: "undo and redo", cfg: Config{Root: root, Undo: true, Redo: true}, wantErr: true},
		{name: "commit and dry run", cfg: Config{Root: root, Commit: true, DryRun: true}, wantErr: true},
		{name: "bad level", cfg: Config{Root: root, LogLevel: "chatty"}, wantErr: true},
		{name: "missing root", cfg: Config{Root: filepath.Join(root, "nope")}, wantErr: true},
		{name: "root is file", cfg: Config{Root: file}, wantErr: true},
		{name: "negative timeout", cfg: Config{Root: root, LockTimeout: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (!filepath.IsAbs(cfg.Root) || cfg.Message != DefaultMessage) {
				t.Errorf("Validate did not normalize: %+v", cfg)
			}
		})
	}
}

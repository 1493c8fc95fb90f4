package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sokinpui/melt.go/internal/logging"
)

const (
	EnvPrefix      = "MELT"
	ConfigFileName = ".melt"

	DefaultMessage     = "Apply model response"
	DefaultLockTimeout = 5 * time.Second
)

// Config holds every option of the command line and the library.
type Config struct {
	Root        string
	File        string
	Partial     bool
	Commit      bool
	Message     string
	AuthorName  string
	AuthorEmail string
	Fuzzy       bool
	DryRun      bool
	Nvim        bool
	HTML        string
	LogLevel    string
	LockTimeout time.Duration
	NoTUI       bool
	Undo        bool
	Redo        bool
}

// BindFlags defines the flags shared by every command.
func BindFlags(flags *pflag.FlagSet) {
	flags.StringP("root", "C", ".", "Project root the response's file paths are relative to.")
	flags.StringP("file", "f", "", "Read the response from a file ('-' for stdin). Defaults to piped stdin, then the clipboard.")
	flags.Bool("partial", false, "Treat the response as still streaming: parse leniently and never apply.")
	flags.BoolP("commit", "c", false, "Commit the applied files to git.")
	flags.StringP("message", "m", DefaultMessage, "Commit message.")
	flags.String("author-name", "", "Commit author name (defaults to git config).")
	flags.String("author-email", "", "Commit author email (defaults to git config).")
	flags.Bool("fuzzy", false, "Also try whitespace-insensitive block matching.")
	flags.BoolP("dry-run", "n", false, "Show what would change without writing anything.")
	flags.BoolP("nvim", "b", false, "Write files through Neovim buffers.")
	flags.String("html", "", "Write the narrative as HTML to this file.")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error.")
	flags.Duration("lock-timeout", DefaultLockTimeout, "How long to wait for another melt run on the same tree.")
	flags.Bool("no-tui", false, "Disable the spinner and live views.")
	flags.BoolP("undo", "u", false, "Undo the last applied response.")
	flags.BoolP("redo", "r", false, "Redo the last undone response.")
}

// Load resolves the configuration from flags, MELT_* environment variables
// and an optional .melt.yaml in the project root, in that order of
// precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("root"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Root:        v.GetString("root"),
		File:        v.GetString("file"),
		Partial:     v.GetBool("partial"),
		Commit:      v.GetBool("commit"),
		Message:     v.GetString("message"),
		AuthorName:  v.GetString("author-name"),
		AuthorEmail: v.GetString("author-email"),
		Fuzzy:       v.GetBool("fuzzy"),
		DryRun:      v.GetBool("dry-run"),
		Nvim:        v.GetBool("nvim"),
		HTML:        v.GetString("html"),
		LogLevel:    v.GetString("log-level"),
		LockTimeout: v.GetDuration("lock-timeout"),
		NoTUI:       v.GetBool("no-tui"),
		Undo:        v.GetBool("undo"),
		Redo:        v.GetBool("redo"),
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes Root to an absolute path.
func (c *Config) Validate() error {
	if c.Undo && c.Redo {
		return fmt.Errorf("--undo and --redo are mutually exclusive")
	}
	if c.Commit && c.DryRun {
		return fmt.Errorf("--commit and --dry-run are mutually exclusive")
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("--lock-timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Root == "" {
		c.Root = "."
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", c.Root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root %q: not a directory", c.Root)
	}
	c.Root = abs

	if c.Message == "" {
		c.Message = DefaultMessage
	}
	return nil
}

package melt

import (
	"context"
	"fmt"

	"github.com/sokinpui/melt.go/cli"
)

// Config for using melt as a library.
type Config struct {
	// Root is the project root edit paths are relative to. Defaults to the
	// working directory.
	Root string
	// Commit the written files to the enclosing git repository.
	Commit bool
	// Message is the commit message.
	Message string
	// Fuzzy enables whitespace-insensitive block matching.
	Fuzzy bool
	// DryRun computes the changes without writing them.
	DryRun bool
}

// Apply parses the given response and applies its edits to files.
// It returns a summary of the operations in a map.
func Apply(content string, config Config) (map[string][]string, error) {
	cliCfg := &cli.Config{
		Root:    config.Root,
		Commit:  config.Commit,
		Message: config.Message,
		Fuzzy:   config.Fuzzy,
		DryRun:  config.DryRun,
		NoTUI:   true,
	}

	app, err := New(cliCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize melt app: %w", err)
	}

	summary, err := app.ApplyContent(context.Background(), content)
	if err != nil {
		return nil, err
	}

	result := map[string][]string{
		"Created":  summary.Created,
		"Modified": summary.Modified,
		"Failed":   summary.Failed,
	}
	if summary.Commit != "" {
		result["Commit"] = []string{summary.Commit}
	}

	return result, nil
}

// Package cleaner runs the external normalisation step that adds
// llm_generated_program and llm_generated_university to scraped records.
package cleaner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

type Config struct {
	// Interpreter or executable, e.g. "python".
	Command string
	// Script passed as first argument. Empty runs Command directly.
	Script string
	Input  string
	Output string
}

type Cleaner struct {
	cfg Config
}

func New(cfg Config) *Cleaner {
	return &Cleaner{cfg: cfg}
}

func (c *Cleaner) args() []string {
	var args []string
	if c.cfg.Script != "" {
		args = append(args, c.cfg.Script)
	}
	return append(args, "--file", c.cfg.Input, "--out", c.cfg.Output)
}

// Check reports whether the collaborator can be launched at all.
func (c *Cleaner) Check() error {
	if _, err := exec.LookPath(c.cfg.Command); err != nil {
		return fmt.Errorf("cleaner command %s: %w", c.cfg.Command, err)
	}
	if c.cfg.Script != "" {
		if _, err := os.Stat(c.cfg.Script); err != nil {
			return fmt.Errorf("cleaner script %s: %w", c.cfg.Script, err)
		}
	}
	return nil
}

// Run invokes the collaborator and waits for it to exit.
func (c *Cleaner) Run(ctx context.Context) error {
	if _, err := os.Stat(c.cfg.Input); err != nil {
		return fmt.Errorf("cleaner input %s: %w", c.cfg.Input, err)
	}
	if err := c.Check(); err != nil {
		return err
	}

	slog.Info("Cleaning scraped records", "input", c.cfg.Input, "output", c.cfg.Output)
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.args()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stdout.Len() > 0 {
		slog.Debug("Cleaner output", "stdout", stdout.String())
	}
	if err != nil {
		return fmt.Errorf("cleaner %s failed: %w: %s", c.cfg.Command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	slog.Info("Data cleaning completed", "output", c.cfg.Output)
	return nil
}

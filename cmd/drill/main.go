package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/jumptrain/internal/drill"
	"github.com/okian/jumptrain/pkg/logger"
)

const (
	defaultCopies    = 3
	defaultTimeout   = 10 * time.Second
	defaultWait      = 20 * time.Second
	defaultRunBudget = 5 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		copies     = flag.Int("copies", defaultCopies, "How many times each command is sent concurrently under one id")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait       = flag.Duration("wait", defaultWait, "Default limit for each step's wait")
		scriptFile = flag.String("script", "", "Drill script YAML (default: built-in script for the built-in catalog)")
		outputFile = flag.String("output", "", "Save the received events to this JSON file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	script, err := loadScript(*scriptFile)
	if err != nil {
		os.Stderr.WriteString("failed to load script: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunBudget)
	defer cancel()

	runner := drill.NewRunner(drill.Config{
		BaseURL:     *baseURL,
		Copies:      *copies,
		Timeout:     *timeout,
		WaitTimeout: *wait,
		OutputFile:  *outputFile,
		Verbose:     *verbose,
	}, logger.Named("drill"))
	if err := runner.Run(ctx, script); err != nil {
		os.Stderr.WriteString("drill failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func loadScript(path string) (*drill.Script, error) {
	if path == "" {
		return drill.DefaultScript()
	}
	return drill.LoadScript(path)
}

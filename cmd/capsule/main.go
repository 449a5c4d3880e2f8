package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/config"
	"github.com/formdepartment/capsule/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ __ _ _ __  ___ _   _| | ___
  / __/ _' | '_ \/ __| | | | |/ _ \
 | (_| (_| | |_) \__ \ |_| | |  __/
  \___\__,_| .__/|___/\__,_|_|\___|
           |_|

  Product breakdowns from AI replies

  Usage: capsule <command> [options]
         capsule --help

  MCP server mode requires piped input.`)
}

// loadConfig reads ~/.capsule/config.json, the nearest repo .capsule/config.json
// and a .env file in the working directory, then CAPSULE_* variables.
func loadConfig() (*config.Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, ".capsule")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("could not determine working directory: %w", err)
	}

	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err = config.ApplyEnv(cfg, filepath.Join(cwd, ".env"))
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, baseDir, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	cfg, baseDir, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	env := newEnvironment(cfg, baseDir, logger)
	app := newCLIApp(env)

	args := os.Args
	// No args + piped stdin → MCP server
	if len(args) < 2 {
		args = append(args, "mcp")
	}

	runErr := app.Run(args)
	env.Close()
	_ = logger.Sync()

	if runErr != nil {
		var exitErr cli.ExitCoder
		if errors.As(runErr, &exitErr) && runErr.Error() == "" {
			os.Exit(exitErr.ExitCode())
		}
		logger.Debug("command failed", zap.Error(runErr))
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

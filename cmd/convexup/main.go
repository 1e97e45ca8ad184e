// Command convexup provisions a self-hosted Convex deployment: a backend
// and a dashboard on the local Docker daemon, with the dashboard gated on
// backend health.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `Usage: convexup [-config FILE] COMMAND [flags]

Commands:
  validate   Check the deployment topology against the environment
  render     Write the docker-compose document
  codegen    Write the convex/ tsconfig.json
  up         Start the deployment and wait for it to become healthy
  down       Stop and remove the deployment (volumes are kept)
  status     Report the state of the deployment's services
  version    Print version and exit
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("convexup", flag.ContinueOnError)
	configPath := global.String("config", "", "Path to config file")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return ExitConfigError
	}

	if global.NArg() == 0 {
		fmt.Fprint(os.Stderr, usage)
		return ExitConfigError
	}
	command := global.Arg(0)
	commandArgs := global.Args()[1:]

	if command == "version" {
		fmt.Printf("convexup %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg)
	app := NewApp(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, app, command, commandArgs); err != nil {
		if aErr, ok := err.(*AppError); ok {
			logger.Error("command failed",
				"command", command,
				"operation", aErr.Op,
				"error", aErr.Err,
			)
			return aErr.ExitCode
		}
		logger.Error("command failed", "command", command, "error", err)
		return ExitConfigError
	}

	return ExitSuccess
}

func dispatch(ctx context.Context, app *App, command string, args []string) error {
	switch command {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "validate", Err: err, ExitCode: ExitConfigError}
		}
		return app.Validate(ctx)

	case "render":
		fs := flag.NewFlagSet("render", flag.ContinueOnError)
		out := fs.String("o", "docker-compose.yml", "Output path, - for stdout")
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "render", Err: err, ExitCode: ExitConfigError}
		}
		return app.Render(ctx, *out)

	case "codegen":
		fs := flag.NewFlagSet("codegen", flag.ContinueOnError)
		out := fs.String("o", "convex/tsconfig.json", "Output path, - for stdout")
		force := fs.Bool("force", false, "Overwrite an existing file")
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "codegen", Err: err, ExitCode: ExitConfigError}
		}
		return app.Codegen(*out, *force)

	case "up":
		fs := flag.NewFlagSet("up", flag.ContinueOnError)
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "up", Err: err, ExitCode: ExitConfigError}
		}
		return app.Up(ctx)

	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "down", Err: err, ExitCode: ExitConfigError}
		}
		return app.Down(ctx)

	case "status":
		fs := flag.NewFlagSet("status", flag.ContinueOnError)
		if err := fs.Parse(args); err != nil {
			return &AppError{Op: "status", Err: err, ExitCode: ExitConfigError}
		}
		return app.Status(ctx)

	default:
		fmt.Fprint(os.Stderr, usage)
		return &AppError{Op: "dispatch", Err: fmt.Errorf("unknown command %q", command), ExitCode: ExitConfigError}
	}
}

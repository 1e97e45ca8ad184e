package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/subosito/gotenv"

	"github.com/selfhost-sh/convexup/internal/core/codegen"
	"github.com/selfhost-sh/convexup/internal/core/compose"
	"github.com/selfhost-sh/convexup/internal/core/instance"
	"github.com/selfhost-sh/convexup/internal/core/topology"
	"github.com/selfhost-sh/convexup/internal/shell/api"
	"github.com/selfhost-sh/convexup/internal/shell/docker"
	"github.com/selfhost-sh/convexup/internal/shell/orchestrator"
	"github.com/selfhost-sh/convexup/internal/shell/probe"
	"github.com/selfhost-sh/convexup/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitValidateError = 2
	ExitDatabaseError = 3
	ExitDockerError   = 4
	ExitRunError      = 5
)

// ErrRefusingOverwrite is returned when codegen would clobber an existing
// file without --force.
var ErrRefusingOverwrite = errors.New("refusing to overwrite existing file")

// =============================================================================
// App
// =============================================================================

// App implements the CLI commands over the loaded configuration.
type App struct {
	cfg    *Config
	logger *slog.Logger
}

// NewApp creates the command implementation.
func NewApp(cfg *Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// =============================================================================
// Environment Snapshot
// =============================================================================

// loadSnapshot builds the instance environment: the configured dotenv file
// first, then the process environment on top. The snapshot is immutable for
// the rest of the command.
func (a *App) loadSnapshot() (map[string]string, error) {
	values := make(map[string]string)

	if a.cfg.Env.File != "" {
		fileEnv, err := gotenv.Read(a.cfg.Env.File)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read env file %s: %w", a.cfg.Env.File, err)
			}
		} else {
			for k, v := range fileEnv {
				values[k] = v
			}
		}
	}

	for k, v := range topology.EnvironmentFromPairs(os.Environ()).Values() {
		values[k] = v
	}

	return values, nil
}

// =============================================================================
// validate
// =============================================================================

// Validate checks the topology and the rendered compose document against
// the current environment snapshot.
func (a *App) Validate(ctx context.Context) error {
	topo := instance.Topology()
	if err := topo.Validate(); err != nil {
		return &AppError{Op: "Validate", Err: err, ExitCode: ExitValidateError}
	}

	values, err := a.loadSnapshot()
	if err != nil {
		return &AppError{Op: "Validate", Err: err, ExitCode: ExitConfigError}
	}
	env := topology.NewEnvironment(values)

	content, err := compose.Render(topo)
	if err != nil {
		return &AppError{Op: "Validate", Err: err, ExitCode: ExitValidateError}
	}
	if err := compose.Validate(content, values); err != nil {
		return &AppError{Op: "Validate", Err: err, ExitCode: ExitValidateError}
	}

	for _, svc := range topo.StartOrder() {
		resolved := topology.ResolveService(svc, env)
		a.logger.Debug("service resolved", "service", resolved.Name, "image", resolved.Image)
	}

	fmt.Println("topology valid")
	return nil
}

// =============================================================================
// render
// =============================================================================

// Render writes the compose document. out may be "-" for stdout.
func (a *App) Render(_ context.Context, out string) error {
	content, err := compose.Render(instance.Topology())
	if err != nil {
		return &AppError{Op: "Render", Err: err, ExitCode: ExitValidateError}
	}

	if out == "-" {
		_, err := os.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(out, content, 0o644); err != nil {
		return &AppError{Op: "Render", Err: err, ExitCode: ExitConfigError}
	}
	a.logger.Info("compose document written", "path", out)
	return nil
}

// =============================================================================
// codegen
// =============================================================================

// Codegen writes the tsconfig for the functions directory. An existing
// file is only replaced with force set.
func (a *App) Codegen(out string, force bool) error {
	content := codegen.TSConfig()

	if out == "-" {
		_, err := os.Stdout.WriteString(content)
		return err
	}

	if _, err := os.Stat(out); err == nil && !force {
		return &AppError{
			Op:       "Codegen",
			Err:      fmt.Errorf("%w: %s (use --force)", ErrRefusingOverwrite, out),
			ExitCode: ExitConfigError,
		}
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &AppError{Op: "Codegen", Err: err, ExitCode: ExitConfigError}
		}
	}
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		return &AppError{Op: "Codegen", Err: err, ExitCode: ExitConfigError}
	}
	a.logger.Info("tsconfig written", "path", out)
	return nil
}

// =============================================================================
// up
// =============================================================================

// Up provisions the deployment: credentials from the store, services in
// dependency order, the dashboard held behind the backend health gate.
func (a *App) Up(ctx context.Context) error {
	values, err := a.loadSnapshot()
	if err != nil {
		return &AppError{Op: "Up", Err: err, ExitCode: ExitConfigError}
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := a.ensureCredentials(ctx, st, values); err != nil {
		return err
	}
	env := topology.NewEnvironment(values)

	runtime, err := a.openDocker()
	if err != nil {
		return err
	}
	defer runtime.Close()

	prober := probe.NewHTTPProber(map[string]string{
		instance.BackendService: instance.BackendProbeURL(env),
	}, a.cfg.Probe.Timeout, a.logger)

	orch := orchestrator.New(runtime, prober, st, a.logger)
	topo := instance.Topology()

	statusServer := a.startStatusServer(orch, topo)
	defer a.stopStatusServer(statusServer)

	runID, err := orch.Up(ctx, topo, env)
	if err != nil {
		return &AppError{Op: "Up", Err: fmt.Errorf("run %s: %w", runID, err), ExitCode: ExitRunError}
	}

	fmt.Printf("deployment ready\n")
	fmt.Printf("  backend:   %s\n", env.Resolve(topology.RefDefault("URL_BASE", instance.DefaultDeploymentURL)))
	fmt.Printf("  dashboard: http://127.0.0.1:%s\n", env.Resolve(topology.RefDefault("DASHBOARD_PORT", "6791")))
	return nil
}

// ensureCredentials fills INSTANCE_NAME and INSTANCE_SECRET in the
// snapshot. Explicit environment values are stored on first use; after
// that the stored credentials win, so a deployment keeps its identity
// across runs.
func (a *App) ensureCredentials(ctx context.Context, st store.Store, values map[string]string) error {
	name, secret := values["INSTANCE_NAME"], values["INSTANCE_SECRET"]
	if name == "" || secret == "" {
		creds, err := instance.NewCredentials()
		if err != nil {
			return &AppError{Op: "Up", Err: err, ExitCode: ExitConfigError}
		}
		name, secret = creds.Name, creds.Secret
	}

	inst, err := st.EnsureInstance(ctx, name, secret)
	if err != nil {
		return &AppError{Op: "Up", Err: err, ExitCode: ExitDatabaseError}
	}

	values["INSTANCE_NAME"] = inst.Name
	values["INSTANCE_SECRET"] = inst.Secret
	return nil
}

// startStatusServer serves the status API while the run is in flight.
// Returns nil when the API is disabled.
func (a *App) startStatusServer(orch *orchestrator.Orchestrator, topo topology.Topology) *http.Server {
	if a.cfg.Status.Addr == "" {
		return nil
	}

	handler := api.NewHandler(orch, topo, a.logger)
	srv := &http.Server{
		Addr:    a.cfg.Status.Addr,
		Handler: handler.Routes(),
	}
	go func() {
		a.logger.Info("status API listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status API error", "error", err)
		}
	}()
	return srv
}

func (a *App) stopStatusServer(srv *http.Server) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("status API shutdown error", "error", err)
	}
}

// =============================================================================
// down
// =============================================================================

// Down stops and removes the deployment's containers. The data volume is
// kept so up again resumes the same instance.
func (a *App) Down(ctx context.Context) error {
	runtime, err := a.openDocker()
	if err != nil {
		return err
	}
	defer runtime.Close()

	orch := orchestrator.New(runtime, nil, nil, a.logger)
	if err := orch.Down(ctx, instance.Topology()); err != nil {
		return &AppError{Op: "Down", Err: err, ExitCode: ExitDockerError}
	}

	fmt.Println("deployment stopped")
	return nil
}

// =============================================================================
// status
// =============================================================================

// Status prints the observed state of every declared service as JSON.
func (a *App) Status(ctx context.Context) error {
	runtime, err := a.openDocker()
	if err != nil {
		return err
	}
	defer runtime.Close()

	orch := orchestrator.New(runtime, nil, nil, a.logger)
	statuses, err := orch.Status(ctx, instance.Topology())
	if err != nil {
		return &AppError{Op: "Status", Err: err, ExitCode: ExitDockerError}
	}

	out, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return &AppError{Op: "Status", Err: err, ExitCode: ExitRunError}
	}
	fmt.Println(string(out))
	return nil
}

// =============================================================================
// Dependencies
// =============================================================================

func (a *App) openStore() (store.Store, error) {
	if dir := filepath.Dir(a.cfg.Database.DSN); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &AppError{Op: "openStore", Err: err, ExitCode: ExitDatabaseError}
		}
	}
	st, err := store.NewSQLiteStore(a.cfg.Database.DSN)
	if err != nil {
		return nil, &AppError{Op: "openStore", Err: err, ExitCode: ExitDatabaseError}
	}
	return st, nil
}

func (a *App) openDocker() (*docker.Client, error) {
	c, err := docker.NewClient(a.cfg.Docker.Host, a.logger)
	if err != nil {
		return nil, &AppError{Op: "openDocker", Err: err, ExitCode: ExitDockerError}
	}
	return c, nil
}

// =============================================================================
// App Error
// =============================================================================

// AppError carries the exit code of a failed command.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfhost-sh/convexup/internal/core/codegen"
	"github.com/selfhost-sh/convexup/internal/shell/store"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Env.File = "" // no ambient dotenv in tests
	return NewApp(cfg, nil)
}

// =============================================================================
// codegen
// =============================================================================

func TestCodegen_WritesFile(t *testing.T) {
	app := testApp(t)
	out := filepath.Join(t.TempDir(), "convex", "tsconfig.json")

	require.NoError(t, app.Codegen(out, false))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, codegen.TSConfig(), string(content))
}

func TestCodegen_RefusesOverwrite(t *testing.T) {
	app := testApp(t)
	out := filepath.Join(t.TempDir(), "tsconfig.json")
	require.NoError(t, os.WriteFile(out, []byte("{}"), 0644))

	err := app.Codegen(out, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefusingOverwrite)

	// The file is untouched.
	content, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "{}", string(content))
}

func TestCodegen_ForceOverwrites(t *testing.T) {
	app := testApp(t)
	out := filepath.Join(t.TempDir(), "tsconfig.json")
	require.NoError(t, os.WriteFile(out, []byte("{}"), 0644))

	require.NoError(t, app.Codegen(out, true))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, codegen.TSConfig(), string(content))
}

// =============================================================================
// render
// =============================================================================

func TestRender_WritesComposeDocument(t *testing.T) {
	app := testApp(t)
	out := filepath.Join(t.TempDir(), "docker-compose.yml")

	require.NoError(t, app.Render(context.Background(), out))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "backend:")
	assert.Contains(t, string(content), "dashboard:")
	assert.Contains(t, string(content), "service_healthy")
}

// =============================================================================
// validate
// =============================================================================

func TestValidate_Succeeds(t *testing.T) {
	app := testApp(t)
	require.NoError(t, app.Validate(context.Background()))
}

// =============================================================================
// Environment Snapshot
// =============================================================================

func TestLoadSnapshot_FileThenProcessOverlay(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"DASHBOARD_PORT=8080\nRUST_LOG=debug\n",
	), 0644))

	app := testApp(t)
	app.cfg.Env.File = envFile
	t.Setenv("RUST_LOG", "trace")

	values, err := app.loadSnapshot()
	require.NoError(t, err)

	assert.Equal(t, "8080", values["DASHBOARD_PORT"])
	// Process environment wins over the file.
	assert.Equal(t, "trace", values["RUST_LOG"])
}

func TestLoadSnapshot_MissingFileIsNotAnError(t *testing.T) {
	app := testApp(t)
	app.cfg.Env.File = filepath.Join(t.TempDir(), "absent.env")

	_, err := app.loadSnapshot()
	require.NoError(t, err)
}

// =============================================================================
// Credentials
// =============================================================================

func TestEnsureCredentials_GeneratesAndPersists(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	app := testApp(t)
	values := map[string]string{}
	require.NoError(t, app.ensureCredentials(context.Background(), st, values))

	assert.True(t, strings.HasPrefix(values["INSTANCE_NAME"], "convex-self-hosted-"))
	assert.Len(t, values["INSTANCE_SECRET"], 64)

	// A second run reuses the stored identity even when the environment
	// offers a different one.
	again := map[string]string{
		"INSTANCE_NAME":   "other",
		"INSTANCE_SECRET": strings.Repeat("f", 64),
	}
	require.NoError(t, app.ensureCredentials(context.Background(), st, again))
	assert.Equal(t, values["INSTANCE_NAME"], again["INSTANCE_NAME"])
	assert.Equal(t, values["INSTANCE_SECRET"], again["INSTANCE_SECRET"])
}

// =============================================================================
// Dispatch
// =============================================================================

func TestDispatch_UnknownCommand(t *testing.T) {
	app := testApp(t)

	err := dispatch(context.Background(), app, "bogus", nil)
	require.Error(t, err)

	aErr, ok := err.(*AppError)
	require.True(t, ok)
	assert.Equal(t, ExitConfigError, aErr.ExitCode)
}

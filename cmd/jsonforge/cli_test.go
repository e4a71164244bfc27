package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/config"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/testutil/fixtures"
	"github.com/v-sekai/jsonforge/testutil/mocks"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	return writeFile(t, "config.yaml", `
log:
  level: error
database:
  driver: sqlite
  name: `+dbPath+`
`)
}

func TestRun_Dispatch(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run(nil, nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"version"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "jsonforge "+Version)

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"help"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "decompose")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"bogus"}, nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: bogus")
}

func TestPredict_FromSchemaFile(t *testing.T) {
	schemaPath := writeFile(t, "wand.json", fixtures.WandSchema)
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", 5)

	var stdout, stderr bytes.Buffer
	code := runPredictWith([]string{
		"--config", writeConfig(t, filepath.Join(t.TempDir(), "unused.db")),
		"--schema", schemaPath,
		"--prompt", "Generate a wand.",
	}, nil, &stdout, &stderr, withEngine(engine))

	require.Equal(t, 0, code, stderr.String())
	assert.JSONEq(t, `{"name":"Wand","price":5}`, stdout.String())
	// pretty 输出保留 key 顺序
	assert.Less(t, strings.Index(stdout.String(), `"name"`), strings.Index(stdout.String(), `"price"`))
	assert.Equal(t, []string{"Generate a wand.", "Generate a wand."}, engine.Prompts())
}

func TestPredict_FromStdinWithFeedback(t *testing.T) {
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", 5)

	var stdout, stderr bytes.Buffer
	code := runPredictWith([]string{
		"--config", writeConfig(t, filepath.Join(t.TempDir(), "unused.db")),
		"--schema", "-",
		"--prompt", "Generate a wand.",
		"--feedback",
		"--json",
	}, strings.NewReader(fixtures.WandSchema), &stdout, &stderr, withEngine(engine))

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"result"`)
	assert.Contains(t, stdout.String(), `"sub_schemas": 2`)
}

func TestPredict_SaveRecordsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", 5)

	var stdout, stderr bytes.Buffer
	code := runPredictWith([]string{
		"--config", writeConfig(t, dbPath),
		"--schema", writeFile(t, "wand.json", fixtures.WandSchema),
		"--prompt", "Generate a wand.",
		"--save",
	}, nil, &stdout, &stderr, withEngine(engine))
	require.Equal(t, 0, code, stderr.String())

	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", Name: dbPath}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	runs, err := store.NewRunStore(context.Background(), db, nil, zap.NewNop())
	require.NoError(t, err)

	list, total, err := runs.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, store.ModeSingle, list[0].Mode)
	assert.Equal(t, "Generate a wand.", list[0].Prompt)
	assert.JSONEq(t, `{"name":"Wand","price":5}`, list[0].Result)
}

func TestPredict_Errors(t *testing.T) {
	schemaPath := writeFile(t, "wand.json", fixtures.WandSchema)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no schema", []string{"--prompt", "x"}, "a schema is required"},
		{"no prompt", []string{"--schema", schemaPath}, "a prompt is required"},
		{"both sources", []string{"--schema", schemaPath, "--example", fixtures.Popstar}, "mutually exclusive"},
		{"unknown example", []string{"--example", "nope"}, `unknown example "nope"`},
		{"missing file", []string{"--schema", filepath.Join(t.TempDir(), "missing.json"), "--prompt", "x"}, "failed to read schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runPredictWith(tt.args, nil, &stdout, &stderr, withEngine(mocks.NewMockEngine()))
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), tt.want)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestPredict_GenerationFailure(t *testing.T) {
	engine := mocks.NewMockEngine().WithError("price", context.DeadlineExceeded)

	var stdout, stderr bytes.Buffer
	code := runPredictWith([]string{
		"--config", writeConfig(t, filepath.Join(t.TempDir(), "unused.db")),
		"--schema", writeFile(t, "wand.json", fixtures.WandSchema),
		"--prompt", "Generate a wand.",
	}, nil, &stdout, &stderr, withEngine(engine))

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "prediction failed")
	assert.Empty(t, stdout.String())
}

func TestDecompose_Example(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDecompose([]string{"--schema", "-"}, strings.NewReader(fixtures.WandSchema), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "# 1/2 name")
	assert.Contains(t, out, "# 2/2 price")
}

func TestDecompose_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDecompose([]string{"--example", fixtures.AvatarProp, "--json"}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"sub_schemas"`)
	assert.Contains(t, stdout.String(), `"leaves"`)
}

func TestDecompose_List(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, runDecompose([]string{"--list"}, nil, &stdout, &stderr))
	for _, name := range fixtures.Names() {
		assert.Contains(t, stdout.String(), name)
	}
}

func TestDecompose_InvalidSchema(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDecompose([]string{"--schema", "-"}, strings.NewReader(`{"type": 5}`), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid schema")
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "bogus", Format: "console", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

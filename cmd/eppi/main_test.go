package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/eppi/internal/config"
	"github.com/verte-zerg/eppi/internal/rank"
	"github.com/verte-zerg/eppi/internal/slp/slptest"
)

func isolateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
}

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := config.DefaultConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeReplayDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	files := []struct {
		name   string
		replay slptest.Replay
	}{
		{"loss.slp", slptest.OneVsOne("OPP#2", "ME#1", 0)},
		{"win.slp", slptest.OneVsOne("ME#1", "OPP#1", 0)},
	}
	for i, f := range files {
		path := filepath.Join(root, f.name)
		require.NoError(t, f.replay.WriteFile(path))
		mtime := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.slp"), []byte("not a replay"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644))
	return root
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	isolateHome(t)
	writeConfig(t, `
[replays]
dir = "/from/file"
connect-code = "FILE#1"
workers = 3

[rank]
timeout-seconds = 2.5

[log]
level = "debug"
`)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--code", "FLAG#1", "--rank-rps", "2"}))
	cfg, level, err := resolveConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.ReplayDir)
	assert.Equal(t, "FLAG#1", cfg.ConnectCode)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2500*time.Millisecond, cfg.RankTimeout)
	assert.InDelta(t, 2.0, cfg.RankRPS, 1e-9)
	assert.Equal(t, rank.DefaultEndpoint, cfg.RankEndpoint)
	assert.Equal(t, "debug", level.String())
}

func TestResolveConfigValidates(t *testing.T) {
	isolateHome(t)
	for _, args := range [][]string{
		{"--workers", "-1"},
		{"--rank-timeout", "0"},
		{"--rank-rps", "-1"},
		{"--log-level", "loud"},
	} {
		cmd := newRootCmd()
		require.NoError(t, cmd.ParseFlags(args))
		_, _, err := resolveConfig(cmd)
		assert.Error(t, err, "args %v", args)
	}
}

func TestResolveConfigRejectsUnknownKeys(t *testing.T) {
	isolateHome(t)
	writeConfig(t, "[replays]\nfolder = \"/x\"\n")
	cmd := newRootCmd()
	_, _, err := resolveConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	template := defaultConfigTemplate()
	var empty config.FileConfig
	_, err := toml.Decode(template, &empty)
	require.NoError(t, err)
	assert.Nil(t, empty.Replays.Dir)

	// Every documented key must be accepted once uncommented.
	lines := strings.Split(template, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") && strings.Contains(line, " = ") {
			lines[i] = strings.TrimPrefix(line, "# ")
		}
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Rank.Endpoint)
	assert.Equal(t, rank.DefaultEndpoint, *cfg.Rank.Endpoint)
	require.NotNil(t, cfg.Log.Level)
	require.NotNil(t, cfg.Replays.Workers)
}

func TestEnsureConfigFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eppi", "config.toml")
	require.NoError(t, ensureConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigTemplate(), string(data))

	require.NoError(t, os.WriteFile(path, []byte("[log]\n"), 0o644))
	require.NoError(t, ensureConfigFile(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[log]\n", string(data))
}

func TestScanCommandPrintsReplays(t *testing.T) {
	isolateHome(t)
	root := writeReplayDir(t)

	stdout, _, err := execute(t, "--code", "ME#1", "scan", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Showing 2 replays | Your stats: 1/1 (50.0%)")
	for _, header := range []string{"Player 1", "Player 2", "Result", "Stage", "Date", "Duration", "Opponent Rank"} {
		assert.Contains(t, stdout, header)
	}
	assert.Contains(t, stdout, "OPP#1")
	assert.Contains(t, stdout, "OPP#2")
	assert.NotContains(t, stdout, "broken")
}

func TestScanCommandLimit(t *testing.T) {
	isolateHome(t)
	root := writeReplayDir(t)

	stdout, _, err := execute(t, "scan", root, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Showing 2 replays")
	assert.Equal(t, 1, strings.Count(stdout, "OPP#"))
}

func TestScanCommandNeedsDirectory(t *testing.T) {
	isolateHome(t)
	_, _, err := execute(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no replay directory")
}

func TestBadFilesAndHistoryAfterScan(t *testing.T) {
	isolateHome(t)
	root := writeReplayDir(t)

	_, stderr, err := execute(t, "bad-files")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No unparseable replays recorded")

	_, _, err = execute(t, "scan", root)
	require.NoError(t, err)

	stdout, _, err := execute(t, "bad-files")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "broken.slp")+"\n", stdout)

	stdout, _, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Finished")
	assert.Contains(t, stdout, root)
}

func TestScanCommandLooksUpOpponent(t *testing.T) {
	isolateHome(t)
	root := writeReplayDir(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"getUser":{"displayName":"Opp","rankedNetplayProfile":{"ratingOrdinal":1500}}}}`)
	}))
	t.Cleanup(server.Close)

	stdout, stderr, err := execute(t, "--code", "ME#1", "--rank-endpoint", server.URL, "scan", root, "--lookup")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Opponent OPP#1: Gold 1")
	assert.Contains(t, stdout, "Gold 1")
}

func TestRankCommand(t *testing.T) {
	isolateHome(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"getUser":{"displayName":"Opp","rankedNetplayProfile":{"ratingOrdinal":1500}}}}`)
	}))
	t.Cleanup(server.Close)

	stdout, _, err := execute(t, "--rank-endpoint", server.URL, "rank", "OPP#1")
	require.NoError(t, err)
	assert.Equal(t, "OPP#1: Gold 1 [GOLD 1]\n", stdout)
}

func TestRankCommandReportsNotFound(t *testing.T) {
	isolateHome(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"getUser":null}}`)
	}))
	t.Cleanup(server.Close)

	_, _, err := execute(t, "--rank-endpoint", server.URL, "rank", "OPP#1")
	require.ErrorIs(t, err, rank.ErrNotFound)
}

// Package main provides the CLI entrypoint for eppi.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/eppi/internal/config"
	"github.com/verte-zerg/eppi/internal/logx"
	"github.com/verte-zerg/eppi/internal/model"
	"github.com/verte-zerg/eppi/internal/rank"
	"github.com/verte-zerg/eppi/internal/replay"
	"github.com/verte-zerg/eppi/internal/stats"
	"github.com/verte-zerg/eppi/internal/store"
	"github.com/verte-zerg/eppi/internal/tui"
)

const (
	defaultRankTimeout  = 10.0
	defaultHistoryLimit = 20
)

var (
	replayDir    string
	connectCode  string
	workers      int
	logLevel     string
	rankEndpoint string
	rankTimeout  float64
	rankRPS      float64

	scanLookup bool
	scanLimit  int

	historyLimit int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eppi",
		Short:         "Slippi replay browser with opponent rank lookup",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTUICmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&replayDir, "dir", "", "replay directory to scan")
	flags.StringVar(&connectCode, "code", "", "your connect code (e.g. ABCD#123)")
	flags.IntVar(&workers, "workers", 0, "parallel parse workers (0: physical cores)")
	flags.StringVar(&logLevel, "log-level", logx.DefaultLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&rankEndpoint, "rank-endpoint", rank.DefaultEndpoint, "ranking service GraphQL endpoint")
	flags.Float64Var(&rankTimeout, "rank-timeout", defaultRankTimeout, "rank request timeout in seconds")
	flags.Float64Var(&rankRPS, "rank-rps", 0, "max rank requests per second (0: unlimited)")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newRankCmd())
	rootCmd.AddCommand(newBadFilesCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func resolveConfig(cmd *cobra.Command) (model.Config, zerolog.Level, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Config{}, zerolog.NoLevel, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "dir", &replayDir, fileCfg.Replays.Dir)
	applyStringConfig(cmd, "code", &connectCode, fileCfg.Replays.ConnectCode)
	applyIntConfig(cmd, "workers", &workers, fileCfg.Replays.Workers)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "rank-endpoint", &rankEndpoint, fileCfg.Rank.Endpoint)
	applyFloatConfig(cmd, "rank-timeout", &rankTimeout, fileCfg.Rank.TimeoutSeconds)
	applyFloatConfig(cmd, "rank-rps", &rankRPS, fileCfg.Rank.RequestsPerSecond)

	cfg := model.Config{
		ReplayDir:    strings.TrimSpace(replayDir),
		ConnectCode:  strings.TrimSpace(connectCode),
		Workers:      workers,
		RankEndpoint: rankEndpoint,
		RankTimeout:  time.Duration(rankTimeout * float64(time.Second)),
		RankRPS:      rankRPS,
	}
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, zerolog.NoLevel, err
	}
	level, err := logx.ParseLevel(logLevel)
	if err != nil {
		return model.Config{}, zerolog.NoLevel, err
	}
	return cfg, level, nil
}

func validateConfig(cfg model.Config) error {
	if cfg.Workers < 0 {
		return fmt.Errorf("--workers must be >= 0")
	}
	if cfg.RankTimeout <= 0 {
		return fmt.Errorf("--rank-timeout must be > 0")
	}
	if cfg.RankRPS < 0 {
		return fmt.Errorf("--rank-rps must be >= 0")
	}
	if strings.TrimSpace(cfg.RankEndpoint) == "" {
		return fmt.Errorf("--rank-endpoint must not be empty")
	}
	return nil
}

func newScanner(cfg model.Config, logger zerolog.Logger) *replay.Scanner {
	cache := replay.NewBadFileCache(config.DefaultBadFilesPath(), logger)
	return replay.NewScanner(replay.NewParser(nil), cache, cfg.Workers, logger)
}

func newRankClient(cfg model.Config, logger zerolog.Logger) *rank.Client {
	return rank.NewClient(rank.Options{
		Endpoint:          cfg.RankEndpoint,
		Timeout:           cfg.RankTimeout,
		RequestsPerSecond: cfg.RankRPS,
		Logger:            logger,
	})
}

func runTUICmd(cmd *cobra.Command, _ []string) error {
	cfg, level, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, logFile, err := logx.OpenFile(config.DefaultLogPath(), level)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logFile.Close(); cerr != nil {
			// Best-effort close of the log file.
			_ = cerr
		}
	}()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("scan history unavailable")
		st = nil
	} else {
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to close db")
			}
		}()
	}

	m := tui.NewModel(tui.Options{
		Config:  cfg,
		Scanner: newScanner(cfg, logger),
		Fetcher: newRankClient(cfg, logger),
		History: st,
		Logger:  logger,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a replay directory and print the replays",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScanCmd,
	}
	cmd.Flags().BoolVar(&scanLookup, "lookup", false, "look up the opponent rank of the most recent replay")
	cmd.Flags().IntVar(&scanLimit, "limit", 0, "print at most N replays (0: all)")
	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, level, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.ReplayDir = args[0]
	}
	if cfg.ReplayDir == "" {
		return fmt.Errorf("no replay directory: pass one or set [replays] dir in %s", config.DefaultConfigPath())
	}
	if scanLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	logger := logx.New(cmd.ErrOrStderr(), level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replays, summary, err := newScanner(cfg, logger).ScanWithSummary(ctx, cfg.ReplayDir)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	recordScan(ctx, summary.Record(time.Now()), replays, logger)

	analyzer := stats.NewAnalyzer()
	analyzer.SetReplays(replays)
	if scanLookup {
		lookupLatestOpponent(ctx, cmd.ErrOrStderr(), analyzer, cfg, logger)
	}

	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, analyzer, cfg.ConnectCode); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	shown := analyzer.Replays()
	if scanLimit > 0 && len(shown) > scanLimit {
		shown = shown[:scanLimit]
	}
	if err := stats.RenderReplays(out, shown, cfg.ConnectCode, time.Now(), terminalWidth(out)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func recordScan(ctx context.Context, rec model.ScanRecord, replays []model.ReplayInfo, logger zerolog.Logger) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("scan history unavailable")
		return
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close db")
		}
	}()
	if _, err := st.SaveScan(ctx, rec, replays); err != nil {
		logger.Warn().Err(err).Msg("failed to record scan history")
	}
}

func lookupLatestOpponent(ctx context.Context, w io.Writer, analyzer *stats.Analyzer, cfg model.Config, logger zerolog.Logger) {
	if cfg.ConnectCode == "" {
		logErrf(w, "Skipping rank lookup: no connect code set\n")
		return
	}
	lookup, err := analyzer.LookupOpponentRank(ctx, newRankClient(cfg, logger), cfg.ConnectCode)
	switch {
	case err == nil:
		logErrf(w, "Opponent %s: %s\n", lookup.Opponent, lookup.Cached)
	case lookup.Opponent != "":
		logErrf(w, "Failed to lookup rank for %s: %v\n", lookup.Opponent, err)
	default:
		logErrf(w, "Skipping rank lookup: %v\n", err)
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scans",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "number of scans to show (0: all)")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf(cmd.ErrOrStderr(), "failed to close db: %v\n", cerr)
		}
	}()

	scans, err := st.ListScans(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}
	if err := stats.RenderScans(cmd.OutOrStdout(), scans); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <connect-code>",
		Short: "Look up the rank of a connect code",
		Args:  cobra.ExactArgs(1),
		RunE:  runRankCmd,
	}
}

func runRankCmd(cmd *cobra.Command, args []string) error {
	cfg, level, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	code := strings.TrimSpace(args[0])
	if code == "" {
		return fmt.Errorf("connect code must not be empty")
	}
	logger := logx.New(cmd.ErrOrStderr(), level)
	label, err := newRankClient(cfg, logger).FetchRank(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("failed to lookup rank for %s: %w", code, err)
	}
	line := fmt.Sprintf("%s: %s", code, label)
	if icon := rank.IconName(label); icon != "" {
		line += fmt.Sprintf(" [%s]", icon)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newBadFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bad-files",
		Short: "List replays that failed to parse and are skipped",
		Args:  cobra.NoArgs,
		RunE:  runBadFilesCmd,
	}
}

func runBadFilesCmd(cmd *cobra.Command, _ []string) error {
	cache := replay.NewBadFileCache(config.DefaultBadFilesPath(), zerolog.Nop())
	set, err := cache.Load()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cache.Path(), err)
	}
	if len(set) == 0 {
		logErrf(cmd.ErrOrStderr(), "No unparseable replays recorded in %s\n", cache.Path())
		return nil
	}
	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), path); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# eppi configuration
# Uncomment a value to enable it. CLI flags override config values.

[replays]
# dir = "/path/to/Slippi"      # Replay directory to scan
# connect-code = "ABCD#123"    # Your connect code
# workers = 0                  # Parallel parse workers (0: physical cores)

[rank]
# endpoint = %q
# timeout-seconds = %.1f      # Rank request timeout
# requests-per-second = 0     # Max rank requests per second (0: unlimited)

[log]
# level = %q                # debug, info, warn, error
`,
		rank.DefaultEndpoint,
		defaultRankTimeout,
		logx.DefaultLevel,
	)
}

func terminalWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	return width
}

func logErrf(w io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

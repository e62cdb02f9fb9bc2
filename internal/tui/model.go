// Package tui provides the Bubble Tea replay browser.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/verte-zerg/eppi/internal/bridge"
	"github.com/verte-zerg/eppi/internal/model"
	"github.com/verte-zerg/eppi/internal/rank"
	"github.com/verte-zerg/eppi/internal/replay"
	"github.com/verte-zerg/eppi/internal/stats"
	"github.com/verte-zerg/eppi/internal/store"
)

const pollInterval = 100 * time.Millisecond

const (
	settingsDir = iota
	settingsCode
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Scanner produces the replay list for a directory.
type Scanner interface {
	ScanWithSummary(ctx context.Context, root string) ([]model.ReplayInfo, replay.Summary, error)
}

// Options wires the model to its collaborators.
type Options struct {
	Config  model.Config
	Scanner Scanner
	Fetcher stats.Fetcher
	// History is optional; without it scans are not recorded.
	History *store.Store
	Logger  zerolog.Logger
	// Now is the clock used for relative dates. Defaults to time.Now.
	Now func() time.Time
}

type scanResult struct {
	replays []model.ReplayInfo
	summary replay.Summary
	err     error
}

type rankResult struct {
	opponent string
	rank     string
	err      error
}

type pollMsg time.Time

// Model implements the Bubble Tea replay browser.
type Model struct {
	cfg     model.Config
	scanner Scanner
	fetcher stats.Fetcher
	history *store.Store
	logger  zerolog.Logger
	now     func() time.Time

	analyzer        *stats.Analyzer
	scans           *bridge.Slot[scanResult]
	lookups         *bridge.Slot[rankResult]
	pendingOpponent string

	table   table.Model
	spinner spinner.Model

	width  int
	height int

	status    string
	statusErr bool

	settingsMode   bool
	settingsInputs []textinput.Model
	settingsIndex  int
	settingsError  string
}

// NewModel constructs the replay browser. The replays of the last recorded
// scan are shown until a new scan completes.
func NewModel(opts Options) *Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Model{
		cfg:      opts.Config,
		scanner:  opts.Scanner,
		fetcher:  opts.Fetcher,
		history:  opts.History,
		logger:   opts.Logger,
		now:      now,
		analyzer: stats.NewAnalyzer(),
		scans: bridge.New(func(r *panics.Recovered) scanResult {
			opts.Logger.Error().Bytes("stack", r.Stack).Msgf("scan panicked: %v", r.Value)
			return scanResult{err: fmt.Errorf("scan crashed: %v", r.Value)}
		}),
		lookups: bridge.New(func(r *panics.Recovered) rankResult {
			opts.Logger.Error().Bytes("stack", r.Stack).Msgf("rank lookup panicked: %v", r.Value)
			return rankResult{err: fmt.Errorf("rank lookup crashed: %v", r.Value)}
		}),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.initTable()
	m.initSettingsInputs()
	m.loadHistory()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, pollCmd())
}

func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case pollMsg:
		m.poll()
		return m, pollCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.settingsMode {
			return m.updateSettings(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "s":
			m.startScan()
			return m, nil
		case "r":
			m.startRankLookup()
			return m, nil
		case "/":
			return m.startSettings()
		default:
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.settingsMode {
		return fitLines(m.renderSettings(), m.width, m.height)
	}
	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	return strings.Join([]string{padLines(header, m.width), body, padLines(footer, m.width)}, "\n")
}

// poll drains both background slots without blocking.
func (m *Model) poll() {
	if res, ok := m.scans.Poll(); ok {
		m.applyScan(res)
	}
	if res, ok := m.lookups.Poll(); ok {
		m.applyRank(res)
	}
}

func (m *Model) startScan() {
	dir := strings.TrimSpace(m.cfg.ReplayDir)
	if dir == "" {
		m.setStatus("Set a replay directory first (press /)", true)
		return
	}
	scanner := m.scanner
	if !m.scans.Start(func() scanResult {
		replays, summary, err := scanner.ScanWithSummary(context.Background(), dir)
		return scanResult{replays: replays, summary: summary, err: err}
	}) {
		return
	}
	m.logger.Info().Str("dir", dir).Msg("scan started")
	m.setStatus("Scanning replays...", false)
}

func (m *Model) applyScan(res scanResult) {
	if res.err != nil {
		m.logger.Error().Err(res.err).Msg("scan failed")
		m.setStatus(fmt.Sprintf("Error: %v", res.err), true)
		return
	}
	m.analyzer.SetReplays(res.replays)
	m.refreshTable()
	m.setStatus(fmt.Sprintf("Found %d replays", len(res.replays)), false)
	m.recordScan(res)
}

func (m *Model) recordScan(res scanResult) {
	if m.history == nil {
		return
	}
	if _, err := m.history.SaveScan(context.Background(), res.summary.Record(m.now()), res.replays); err != nil {
		m.logger.Warn().Err(err).Msg("failed to record scan history")
	}
}

func (m *Model) startRankLookup() {
	code := strings.TrimSpace(m.cfg.ConnectCode)
	if code == "" {
		m.setStatus("Set your connect code first (press /)", true)
		return
	}
	if m.lookups.Pending() {
		return
	}
	lookup, err := m.analyzer.BeginRankLookup(code)
	switch {
	case errors.Is(err, stats.ErrNoReplays):
		m.setStatus("No replays loaded. Scan first (press s)", true)
		return
	case errors.Is(err, stats.ErrNotInReplay):
		m.setStatus(fmt.Sprintf("%s is not a player in the most recent replay", code), true)
		return
	case err != nil:
		m.setStatus(fmt.Sprintf("Error: %v", err), true)
		return
	}
	if lookup.Hit {
		m.refreshTable()
		m.setStatus(fmt.Sprintf("Found cached rank for %s: %s", lookup.Opponent, lookup.Cached), false)
		return
	}
	opponent := lookup.Opponent
	fetcher := m.fetcher
	m.pendingOpponent = opponent
	m.lookups.Start(func() rankResult {
		label, err := fetcher.FetchRank(context.Background(), opponent)
		return rankResult{opponent: opponent, rank: label, err: err}
	})
	m.setStatus(fmt.Sprintf("Looking up rank for %s...", opponent), false)
}

func (m *Model) applyRank(res rankResult) {
	if res.opponent == "" {
		// A crashed lookup only carries the error.
		res.opponent = m.pendingOpponent
	}
	m.pendingOpponent = ""
	m.analyzer.ApplyRankResult(res.opponent, res.rank, res.err)
	if res.err != nil {
		m.setStatus(fmt.Sprintf("Failed to lookup rank for %s: %v", res.opponent, res.err), true)
		return
	}
	m.refreshTable()
	m.setStatus(fmt.Sprintf("Found rank for %s: %s", res.opponent, rankStyle(res.rank).Render(res.rank)), false)
}

func (m *Model) setStatus(status string, isErr bool) {
	m.status = status
	m.statusErr = isErr
}

func (m *Model) busy() bool {
	return m.scans.Pending() || m.lookups.Pending()
}

func (m *Model) loadHistory() {
	if m.history == nil {
		m.setStatus(emptyStatus, false)
		return
	}
	replays, err := m.history.LatestReplays(context.Background())
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to load scan history")
		m.setStatus(emptyStatus, false)
		return
	}
	if len(replays) == 0 {
		m.setStatus(emptyStatus, false)
		return
	}
	m.analyzer.SetReplays(replays)
	m.refreshTable()
	m.setStatus(fmt.Sprintf("Loaded %d replays from the last scan. Press s to rescan", len(replays)), false)
}

const emptyStatus = "No replays loaded. Set your replay directory with / and press s to scan"

func (m *Model) initTable() {
	m.table = table.New(
		table.WithColumns(replayColumns()),
		table.WithFocused(true),
		table.WithHeight(1),
	)
	m.table.SetStyles(replayTableStyles())
}

func replayColumns() []table.Column {
	widths := []int{14, 14, 7, 22, 13, 8, 24}
	columns := make([]table.Column, len(stats.ReplayHeaders))
	for i, title := range stats.ReplayHeaders {
		columns[i] = table.Column{Title: title, Width: widths[i]}
	}
	return columns
}

func replayTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) refreshTable() {
	replays := m.analyzer.Replays()
	now := m.now()
	rows := make([]table.Row, 0, len(replays))
	for i, r := range replays {
		rows = append(rows, table.Row(stats.ReplayRow(r, i, m.cfg.ConnectCode, now)))
	}
	m.table.SetRows(rows)
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.table.SetWidth(m.width)
	bodyHeight := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderFooter())
	if bodyHeight < 2 {
		bodyHeight = 2
	}
	// One line of the table view is the header border.
	m.table.SetHeight(bodyHeight - 1)
	for i := range m.settingsInputs {
		promptWidth := lipgloss.Width(m.settingsInputs[i].Prompt)
		m.settingsInputs[i].Width = maxInt(10, modalInnerWidth(m.width)-promptWidth)
	}
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render("eppi") + "  " + stats.SummaryLine(m.analyzer, m.cfg.ConnectCode)
	dir := m.cfg.ReplayDir
	if dir == "" {
		dir = "(not set)"
	}
	code := m.cfg.ConnectCode
	if code == "" {
		code = "(not set)"
	}
	settings := truncateLine(fmt.Sprintf("Dir: %s  Code: %s", dir, code), m.width)
	return title + "\n" + headerStyle.Render(settings)
}

func (m *Model) renderBody() string {
	if len(m.analyzer.Replays()) == 0 {
		return headerStyle.Render("No replays loaded.")
	}
	return tableStyle.Render(m.table.View())
}

func (m *Model) renderFooter() string {
	status := m.status
	if m.busy() {
		status = m.spinner.View() + " " + status
	}
	style := statusStyle
	if m.statusErr {
		style = errorStyle
	}
	lines := wrapWords(status, m.width)
	for i, line := range lines {
		lines[i] = style.Render(line)
	}
	help := headerStyle.Render("Scan: s  Opponent rank: r  Settings: /  Scroll: up/down  Quit: q")
	return strings.Join(append(lines, help), "\n")
}

func (m *Model) initSettingsInputs() {
	m.settingsInputs = []textinput.Model{
		newSettingsInput("Replay directory: "),
		newSettingsInput("Connect code: "),
	}
	m.settingsInputs[settingsCode].Placeholder = "ABCD#123"
	m.setInputsFromConfig()
}

func newSettingsInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.settingsInputs[settingsDir].SetValue(m.cfg.ReplayDir)
	m.settingsInputs[settingsCode].SetValue(m.cfg.ConnectCode)
}

func (m *Model) startSettings() (tea.Model, tea.Cmd) {
	m.settingsMode = true
	m.settingsError = ""
	m.setInputsFromConfig()
	return m, m.setSettingsIndex(0)
}

func (m *Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.settingsMode = false
		m.settingsError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applySettings(); err != nil {
			m.settingsError = err.Error()
			return m, nil
		}
		m.settingsMode = false
		m.settingsError = ""
		m.refreshTable()
		m.updateLayout()
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		return m, m.setSettingsIndex(m.settingsIndex + 1)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.setSettingsIndex(m.settingsIndex - 1)
	}
	var cmd tea.Cmd
	m.settingsInputs[m.settingsIndex], cmd = m.settingsInputs[m.settingsIndex].Update(msg)
	return m, cmd
}

func (m *Model) setSettingsIndex(idx int) tea.Cmd {
	count := len(m.settingsInputs)
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.settingsIndex = idx
	var cmd tea.Cmd
	for i := range m.settingsInputs {
		if i == m.settingsIndex {
			cmd = m.settingsInputs[i].Focus()
		} else {
			m.settingsInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applySettings() error {
	code := strings.TrimSpace(m.settingsInputs[settingsCode].Value())
	if code != "" && !strings.Contains(code, "#") {
		return fmt.Errorf("connect code must look like ABCD#123")
	}
	m.cfg.ReplayDir = strings.TrimSpace(m.settingsInputs[settingsDir].Value())
	m.cfg.ConnectCode = code
	m.logger.Info().Str("dir", m.cfg.ReplayDir).Str("code", m.cfg.ConnectCode).Msg("settings updated")
	return nil
}

func (m *Model) renderSettings() string {
	body := []string{titleStyle.Render("Settings")}
	for _, input := range m.settingsInputs {
		body = append(body, input.View())
	}
	body = append(body, headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel"))
	if m.settingsError != "" {
		body = append(body, errorStyle.Render(m.settingsError))
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// rankStyle colors a rank label by its tier.
func rankStyle(label string) lipgloss.Style {
	icon := rank.IconName(label)
	tier, _, _ := strings.Cut(icon, " ")
	color, ok := tierColors[tier]
	if !ok {
		color = "#B8B8B8"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

var tierColors = map[string]string{
	"BRONZE":      "#CD7F32",
	"SILVER":      "#C0C0C0",
	"GOLD":        "#FFD700",
	"PLATINUM":    "#7FDBDA",
	"DIAMOND":     "#5DADE2",
	"MASTER":      "#A569BD",
	"GRANDMASTER": "#E74C3C",
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 80))
}

func modalInnerWidth(width int) int {
	w := modalWidth(width)
	w -= 6 // 2 border + 4 padding
	if w < 10 {
		return 10
	}
	return w
}

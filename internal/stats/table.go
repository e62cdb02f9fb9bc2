package stats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/eppi/internal/model"
)

// RenderSummary prints the replay count and, when a connect code is set, the
// player's record.
func RenderSummary(w io.Writer, a *Analyzer, connectCode string) error {
	if _, err := fmt.Fprint(w, SummaryLine(a, connectCode)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// SummaryLine is the one-line header shown above the replay table.
func SummaryLine(a *Analyzer, connectCode string) string {
	line := fmt.Sprintf("Showing %d replays", len(a.Replays()))
	if connectCode == "" {
		return line
	}
	wins, losses := a.StatsForPlayer(connectCode)
	return fmt.Sprintf("%s | Your stats: %d/%d (%.1f%%)", line, wins, losses, WinRate(wins, losses))
}

// RenderReplays prints replays as an aligned table. A positive width truncates
// each line to that many terminal cells.
func RenderReplays(w io.Writer, replays []model.ReplayInfo, connectCode string, now time.Time, width int) error {
	if len(replays) == 0 {
		_, err := fmt.Fprintln(w, "No replays found.")
		return err
	}
	rows := make([][]string, 0, len(replays))
	for i, r := range replays {
		rows = append(rows, ReplayRow(r, i, connectCode, now))
	}
	for _, line := range formatTable(ReplayHeaders, rows, map[int]bool{5: true}) {
		if width > 0 {
			line = runewidth.Truncate(line, width, "…")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderScans prints the scan history, newest first as given.
func RenderScans(w io.Writer, scans []model.ScanRecord) error {
	if len(scans) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded.")
		return err
	}
	headers := []string{"Finished", "Directory", "Replays", "Files", "Cached bad", "New bad", "Elapsed"}
	rows := make([][]string, 0, len(scans))
	for _, s := range scans {
		rows = append(rows, []string{
			s.FinishedAt.Local().Format("2006-01-02 15:04"),
			s.Root,
			fmt.Sprintf("%d", s.Parsed),
			fmt.Sprintf("%d", s.Candidates),
			fmt.Sprintf("%d", s.Skipped),
			fmt.Sprintf("%d", s.NewlyBad),
			s.Elapsed.Round(time.Millisecond).String(),
		})
	}
	rightAlign := map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	if len(headers) > 0 {
		lines = append(lines, formatRow(headers, widths, rightAlignCols))
	}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	var b strings.Builder
	for i := 0; i < len(widths); i++ {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(padCell(cell, widths[i], rightAlignCols[i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func padCell(value string, width int, rightAlign bool) string {
	if rightAlign {
		return runewidth.FillLeft(value, width)
	}
	return runewidth.FillRight(value, width)
}

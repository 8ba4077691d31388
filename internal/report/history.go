package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/pipeline/internal/history"
	"github.com/aristath/pipeline/internal/orchestrator"
)

// Runs renders a list of recorded runs.
func Runs(runs []history.Run) string {
	if len(runs) == 0 {
		return "no runs recorded\n"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(StyleBorder).
		Headers("RUN", "PIPELINE", "STATUS", "SCORE", "WAVES", "STARTED", "DURATION")

	for _, r := range runs {
		t.Row(
			r.ID,
			r.Pipeline,
			runStatusStyle(r.Status).Render(string(r.Status)),
			fmt.Sprintf("%.1f", r.QualityScore),
			fmt.Sprintf("%d/%d", r.WavesRun, r.WavesPlanned),
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r.Duration),
		)
	}
	return t.Render() + "\n"
}

// History renders one recorded run with its task results.
func History(r *history.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(StyleBorder).
		Headers("TASK", "STATUS", "WAVE", "ATTEMPTS", "EXIT", "DURATION", "DETAIL")

	for _, rec := range r.Tasks {
		status := string(rec.Status)
		if rec.SkipReason != "" {
			status += " (" + string(rec.SkipReason) + ")"
		}
		t.Row(
			rec.Name,
			StatusStyle(rec.Status).Render(status),
			strconv.Itoa(rec.Wave),
			strconv.Itoa(rec.Attempts),
			strconv.Itoa(rec.ExitCode),
			formatDuration(rec.Duration),
			truncate(rec.Error, maxErrWidth),
		)
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(fmt.Sprintf("Run %s (%s)", r.ID, r.Pipeline)))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  score %.1f  waves %d/%d  peak parallel %d  %s\n",
		runStatusStyle(r.Status).Render(strings.ToUpper(string(r.Status))),
		r.QualityScore, r.WavesRun, r.WavesPlanned, r.PeakParallel, formatDuration(r.Duration))
	if r.AbortReason != "" {
		b.WriteString(StyleStatusFailed.Render("aborted: " + r.AbortReason))
		b.WriteString("\n")
	}
	return b.String()
}

func runStatusStyle(s orchestrator.RunStatus) lipgloss.Style {
	if s == orchestrator.RunCompleted {
		return StyleStatusSuccess
	}
	return StyleStatusFailed
}

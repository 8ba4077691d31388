// Package report renders run results and dry-run plans for the terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/pipeline/internal/discovery"
	"github.com/aristath/pipeline/internal/orchestrator"
	"github.com/aristath/pipeline/internal/scheduler"
)

const maxErrWidth = 60

// Run renders a finished run: one row per task, then a summary line.
func Run(res *orchestrator.RunResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(StyleBorder).
		Headers("TASK", "STATUS", "WAVE", "ATTEMPTS", "DURATION", "DETAIL")

	for _, r := range res.Results {
		status := string(r.Status)
		if r.SkipReason != "" {
			status += " (" + string(r.SkipReason) + ")"
		}
		t.Row(
			r.Name,
			StatusStyle(r.Status).Render(status),
			strconv.Itoa(r.Wave),
			strconv.Itoa(r.Attempts),
			formatDuration(r.Duration),
			truncate(r.ErrString(), maxErrWidth),
		)
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render("Run " + res.RunID))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(summary(res))
	b.WriteString("\n")
	return b.String()
}

func summary(res *orchestrator.RunResult) string {
	counts := res.Counts()
	planned := 0
	if res.Plan != nil {
		planned = len(res.Plan.Waves)
	}
	line := fmt.Sprintf("%s  score %.1f  waves %d/%d  peak parallel %d  %s",
		statusLabel(res.Status),
		res.QualityScore,
		res.WavesRun, planned,
		res.PeakParallel,
		formatDuration(res.Duration),
	)
	line += fmt.Sprintf("\n%d succeeded, %d failed, %d timed out, %d skipped",
		counts[orchestrator.StatusSuccess],
		counts[orchestrator.StatusFailed],
		counts[orchestrator.StatusTimedOut],
		counts[orchestrator.StatusSkipped],
	)
	if res.AbortReason != "" {
		line += "\n" + StyleStatusFailed.Render("aborted: "+res.AbortReason)
	}
	return line
}

func statusLabel(s orchestrator.RunStatus) string {
	return runStatusStyle(s).Render(strings.ToUpper(string(s)))
}

// Plan renders a dry-run plan. programs may be nil; when given, a column
// shows whether each task's program was found.
func Plan(plan *scheduler.Plan, tasks []scheduler.Task, programs []discovery.Program, multiplier float64) string {
	byName := make(map[string]scheduler.Task, len(tasks))
	for _, task := range tasks {
		byName[task.Name] = task
	}
	found := make(map[string]discovery.Program, len(programs))
	for _, p := range programs {
		found[p.Task] = p
	}

	headers := []string{"WAVE", "TASK", "TIMEOUT", "MEMORY", "DEPENDS ON"}
	if programs != nil {
		headers = append(headers, "PROGRAM")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(StyleBorder).
		Headers(headers...)

	for _, wave := range plan.Waves {
		label := strconv.Itoa(wave.Index)
		if wave.Exclusive {
			label += " (exclusive)"
		}
		for _, name := range wave.Tasks {
			task := byName[name]
			row := []string{
				label,
				name,
				formatDuration(task.EffectiveTimeout(multiplier)),
				fmt.Sprintf("%dMB", task.MemoryMB()),
				strings.Join(task.DependsOn, ", "),
			}
			if programs != nil {
				row = append(row, programCell(found[name]))
			}
			t.Row(row...)
			label = ""
		}
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(fmt.Sprintf("Plan: %d tasks in %d waves", plan.TaskCount(), len(plan.Waves))))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	if len(plan.CriticalPath) > 0 {
		fmt.Fprintf(&b, "critical path: %s (%s)\n",
			strings.Join(plan.CriticalPath, " -> "), formatDuration(plan.CriticalPathEstimate))
	}
	return b.String()
}

func programCell(p discovery.Program) string {
	switch {
	case p.Builtin:
		return StyleStatusSkipped.Render(p.Program + " (builtin)")
	case p.Found:
		return StyleStatusSuccess.Render(p.Program)
	case p.Program == "":
		return StyleStatusFailed.Render("(empty)")
	default:
		return StyleStatusFailed.Render(p.Program + " (missing)")
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Package progress renders a run's events to a terminal as they happen:
// a themed header, one line per skill transition, and a final summary
// line. It is a lightweight line-oriented renderer over a typed event
// stream, rather than a full interactive TUI.
package progress

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/wardenhq/warden/internal/core"
)

// styles is a themed style set narrowed to the handful of treatments a
// line-oriented renderer needs.
type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	error   lipgloss.Style
	skipped lipgloss.Style
	label   lipgloss.Style
}

func defaultStyles() styles {
	primary := lipgloss.Color("51")
	return styles{
		header: lipgloss.NewStyle().
			Foreground(primary).
			Bold(true).
			Border(lipgloss.NormalBorder()).
			BorderForeground(primary).
			Padding(0, 1),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	}
}

// Reporter writes one run's progress to out as skills start, finish,
// error, or get skipped.
type Reporter struct {
	out    io.Writer
	styles styles
	// color.NoColor is a package-level switch; colorEnabled lets a
	// Reporter decide independently of the process-wide default
	// (useful for tests capturing plain output).
	colorEnabled bool
}

// New builds a Reporter writing to out. When colorEnabled is false, ANSI
// styling is suppressed regardless of the terminal's own capability
// detection, matching fatih/color's NoColor escape hatch.
func New(out io.Writer, colorEnabled bool) *Reporter {
	return &Reporter{out: out, styles: defaultStyles(), colorEnabled: colorEnabled}
}

// Header prints the run banner: repository and event type.
func (r *Reporter) Header(repository string, eventType core.EventType) {
	title := fmt.Sprintf("warden · %s · %s", repository, eventType)
	if !r.colorEnabled {
		fmt.Fprintln(r.out, title)
		return
	}
	fmt.Fprintln(r.out, r.styles.header.Render(title))
}

// SkillStarted reports a skill beginning its run.
func (r *Reporter) SkillStarted(name string) {
	r.line("▶", name, "starting", r.styles.label)
}

// SkillCompleted reports a skill's terminal report.
func (r *Reporter) SkillCompleted(name string, report core.SkillReport) {
	msg := fmt.Sprintf("%d finding(s) in %dms", len(report.Findings), report.DurationMs)
	r.line("✔", name, msg, r.styles.success)
}

// SkillSkipped reports a skill opting out before it ran.
func (r *Reporter) SkillSkipped(name, reason string) {
	r.line("⏭", name, reason, r.styles.skipped)
}

// SkillError reports a skill run failing outright.
func (r *Reporter) SkillError(name string, err error) {
	r.line("✘", name, err.Error(), r.styles.error)
}

// Retry reports an in-flight LLM call being retried after a transient
// failure.
func (r *Reporter) Retry(filename string, attempt, delayMs int, errText string) {
	msg := fmt.Sprintf("%s: retry %d in %dms (%s)", filename, attempt, delayMs, errText)
	if !r.colorEnabled {
		fmt.Fprintln(r.out, msg)
		return
	}
	fmt.Fprintln(r.out, color.YellowString(msg))
}

// Summary prints the run's terminal outcome line.
func (r *Reporter) Summary(totalFindings int, verdict string) {
	msg := fmt.Sprintf("done: %d finding(s), verdict %s", totalFindings, verdict)
	if !r.colorEnabled {
		fmt.Fprintln(r.out, msg)
		return
	}
	if verdict == "REQUEST_CHANGES" {
		fmt.Fprintln(r.out, r.styles.error.Render(msg))
		return
	}
	fmt.Fprintln(r.out, r.styles.success.Render(msg))
}

func (r *Reporter) line(symbol, name, detail string, style lipgloss.Style) {
	msg := fmt.Sprintf("%s %s: %s", symbol, name, detail)
	if !r.colorEnabled {
		fmt.Fprintln(r.out, msg)
		return
	}
	fmt.Fprintln(r.out, style.Render(msg))
}

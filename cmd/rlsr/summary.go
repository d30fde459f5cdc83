package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/iamd3vil/rlsr/release"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

// renderSummary draws one line per release and per build under a header
// naming the tag.
func renderSummary(s *release.Summary) string {
	tag := s.Meta.Tag
	if tag == "" {
		tag = "untagged"
	}
	if s.Meta.IsSnapshot {
		tag += " (snapshot)"
	}

	lines := []string{titleStyle.Render(fmt.Sprintf("rlsr %s · %s", tag, s.Meta.ShortCommit))}
	for _, r := range s.Releases {
		lines = append(lines, "", releaseLine(r))
		for _, b := range r.Builds {
			status := okStyle.Render("ok")
			if b.Err != nil {
				status = failStyle.Render(fmt.Sprintf("failed (exit %d)", b.ExitCode))
			}
			lines = append(lines, fmt.Sprintf("  %s %s %s", b.Label(), status, mutedStyle.Render(round(b.Duration))))
		}
		if r.Output != nil {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %d files in dist", len(r.Output.Files()))))
		}
		if r.Err != nil {
			lines = append(lines, failStyle.Render("  "+firstLine(r.Err.Error())))
		}
	}
	lines = append(lines, "", mutedStyle.Render(fmt.Sprintf("run %s finished in %s", s.RunID, round(s.Duration))))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func releaseLine(r release.ReleaseSummary) string {
	var state string
	switch {
	case r.Err != nil:
		state = failStyle.Render("failed")
	case r.Published:
		state = okStyle.Render("published")
	case r.SkipReason != "":
		state = mutedStyle.Render("not published: " + r.SkipReason)
	default:
		state = okStyle.Render("done")
	}
	return fmt.Sprintf("%s %s", titleStyle.Render(r.Name), state)
}

func round(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

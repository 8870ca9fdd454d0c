// Package ui renders CLI output for the helpdesk commands. Styled
// output is used on a terminal; pipes and CI get plain text.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/chat"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

// Color palette.
const (
	colorAccent = "39"  // blue accent for headers
	colorGreen  = "42"  // healthy / ok
	colorGray   = "245" // labels, secondary text
	colorRed    = "196" // errors
	colorYellow = "220" // warnings, degraded
)

// Styles holds the render styles for one output stream.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
	Source  lipgloss.Style
}

func styledStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Source:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)).Italic(true),
	}
}

func plainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Source:  lipgloss.NewStyle(),
	}
}

// Renderer writes command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer for out. Styling is enabled only when
// out is a terminal and noColor is false.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	styled := false
	if !noColor {
		if f, ok := out.(*os.File); ok {
			styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}

	styles := plainStyles()
	if styled {
		styles = styledStyles()
	}
	return &Renderer{out: out, styles: styles}
}

// Answer renders a chat result.
func (r *Renderer) Answer(result *chat.Result) {
	fmt.Fprintln(r.out, result.Answer)

	if len(result.Sources) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.styles.Label.Render("Sources:"))
		for _, src := range result.Sources {
			fmt.Fprintf(r.out, "  %s\n", r.styles.Source.Render(src))
		}
	}

	if result.Outcome != "ok" {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.styles.Warning.Render("note: "+outcomeNote(result.Outcome)))
	}
}

func outcomeNote(outcome string) string {
	switch outcome {
	case "degraded":
		return "no matching documentation was found; this answer is not grounded in the knowledge base"
	case "unavailable":
		return "the knowledge base index is not available yet"
	case "error":
		return "something went wrong while answering; this is a fallback response"
	default:
		return "outcome " + outcome
	}
}

// RefreshResult renders the summary of a manual ingestion run.
func (r *Renderer) RefreshResult(jobID, outcome string, documents int, elapsed time.Duration) {
	style := r.styles.Success
	if outcome != "ok" {
		style = r.styles.Warning
	}
	fmt.Fprintf(r.out, "%s %s\n", style.Render(outcome), r.styles.Label.Render(jobID))
	fmt.Fprintf(r.out, "  documents: %d\n", documents)
	fmt.Fprintf(r.out, "  elapsed:   %s\n", elapsed.Round(time.Millisecond))
}

// Status renders service health and metrics.
func (r *Renderer) Status(indexReady bool, documentCount int, generation string, snap *telemetry.Snapshot, jobs []telemetry.JobRun) {
	fmt.Fprintln(r.out, r.styles.Header.Render("Helpdesk status"))

	if indexReady {
		fmt.Fprintf(r.out, "  index:     %s (%d documents, %s)\n",
			r.styles.Success.Render("ready"), documentCount, generation)
	} else {
		fmt.Fprintf(r.out, "  index:     %s\n", r.styles.Warning.Render("unavailable"))
	}

	if snap != nil {
		fmt.Fprintf(r.out, "  queries:   %d total, %d tokens estimated\n", snap.TotalQueries, snap.TotalTokens)
		if len(snap.TopTerms) > 0 {
			var terms []string
			for i, tc := range snap.TopTerms {
				if i >= 5 {
					break
				}
				terms = append(terms, fmt.Sprintf("%s(%d)", tc.Term, tc.Count))
			}
			fmt.Fprintf(r.out, "  top terms: %s\n", strings.Join(terms, " "))
		}
	}

	if len(jobs) > 0 {
		fmt.Fprintln(r.out, r.styles.Header.Render("Recent ingestion runs"))
		for _, job := range jobs {
			style := r.styles.Success
			if job.Outcome != "ok" {
				style = r.styles.Warning
			}
			fmt.Fprintf(r.out, "  %s  %s  %s  %d docs processed\n",
				job.StartedAt.Format("2006-01-02 15:04"),
				style.Render(job.Outcome),
				job.Elapsed.Round(time.Second),
				job.Processed)
		}
	}
}

// Errorf renders an error line.
func (r *Renderer) Errorf(format string, args ...any) {
	fmt.Fprintln(r.out, r.styles.Error.Render("error: "+fmt.Sprintf(format, args...)))
}

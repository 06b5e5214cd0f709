package chatbot

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/knowledge"
	"JarvisChat/internal/session"

	"github.com/fatih/color"
)

// Presenter renders results for a user. It never mutates state; every
// change goes through Dispatch.
type Presenter interface {
	RenderTranscript(turns []session.Turn)
	RenderSearch(resp *backend.SearchResponse, err error)
	RenderStatus(connected bool, health *backend.HealthStatus)
	RenderNotice(msg string)
}

// Render hands a dispatch result to p
func Render(p Presenter, res Result) {
	switch res.Intent.Kind {
	case IntentSubmit:
		switch {
		case errors.Is(res.Err, conversation.ErrDisconnected):
			p.RenderNotice("System Offline: chat is disabled until the backend is reachable. Try /status.")
		case res.Err != nil:
			p.RenderNotice("Error: " + conversation.ErrorMessage(res.Err))
		case res.Exchange != nil:
			p.RenderTranscript([]session.Turn{res.Exchange.Assistant})
		}
		return

	case IntentSearch:
		p.RenderSearch(res.Search, res.Err)
		return

	case IntentRefreshHealth:
		p.RenderStatus(res.Connected, res.Health)
		if !res.CheckedAt.IsZero() {
			p.RenderNotice("Last checked " + res.CheckedAt.Local().Format("15:04:05"))
		}
		return
	}

	if res.Err != nil {
		p.RenderNotice("Error: " + conversation.ErrorMessage(res.Err))
		return
	}

	switch res.Intent.Kind {
	case IntentStats:
		p.RenderNotice(FormatStats(res.Stats))
	case IntentListIngested:
		p.RenderNotice(FormatRecords(res.Records, res.RecordTotal))
	default:
		if res.Notice != "" {
			p.RenderNotice(res.Notice)
		}
	}
}

// FormatStats renders knowledge base statistics on one line
func FormatStats(st *backend.Stats) string {
	if st == nil {
		return "Analytics unavailable"
	}
	return fmt.Sprintf("Vectors: %d  Dimensions: %d", st.TotalVectors, st.Dimension)
}

// FormatRecords renders the most recent ingestions out of total
func FormatRecords(records []knowledge.Record, total int) string {
	if len(records) == 0 {
		return "No documents ingested yet."
	}
	var b strings.Builder
	if total > len(records) {
		fmt.Fprintf(&b, "Ingested documents (latest %d of %d):", len(records), total)
	} else {
		fmt.Fprintf(&b, "Ingested documents (%d):", len(records))
	}
	for _, r := range records {
		fmt.Fprintf(&b, "\n  %s  %s", r.IngestedAt.Local().Format("15:04:05"), r.Source)
		if r.Category != "" {
			fmt.Fprintf(&b, " [%s]", r.Category)
		}
		fmt.Fprintf(&b, "  %d chunks, %d bytes", r.Chunks, r.Bytes)
	}
	return b.String()
}

// ConsolePresenter writes colored plain text
type ConsolePresenter struct {
	out       io.Writer
	user      *color.Color
	assistant *color.Color
	source    *color.Color
	online    *color.Color
	offline   *color.Color
	notice    *color.Color
	dim       *color.Color
}

// NewConsolePresenter creates a presenter writing to out
func NewConsolePresenter(out io.Writer, noColor bool) *ConsolePresenter {
	p := &ConsolePresenter{
		out:       out,
		user:      color.New(color.FgGreen, color.Bold),
		assistant: color.New(color.FgCyan, color.Bold),
		source:    color.New(color.FgMagenta),
		online:    color.New(color.FgGreen),
		offline:   color.New(color.FgRed, color.Bold),
		notice:    color.New(color.FgYellow),
		dim:       color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{p.user, p.assistant, p.source, p.online, p.offline, p.notice, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

func (p *ConsolePresenter) RenderTranscript(turns []session.Turn) {
	for _, t := range turns {
		if t.Role == session.RoleUser {
			p.user.Fprint(p.out, "You: ")
		} else {
			p.assistant.Fprint(p.out, "Jarvis: ")
		}
		fmt.Fprintln(p.out, t.Content)

		if len(t.Sources) > 0 {
			p.source.Fprintln(p.out, "  Knowledge Sources:")
			for _, s := range t.Sources {
				p.source.Fprintf(p.out, "    - %s (score: %.2f)\n", s.SourceID, s.Relevance)
			}
		}
		fmt.Fprintln(p.out)
	}
}

func (p *ConsolePresenter) RenderSearch(resp *backend.SearchResponse, err error) {
	if err != nil {
		p.notice.Fprintf(p.out, "Search failed: %s\n", conversation.ErrorMessage(err))
		return
	}
	if resp == nil {
		return
	}

	p.online.Fprintf(p.out, "Found %d results\n", resp.TotalResults)
	for i, r := range resp.Results {
		source := r.Source
		if source == "" {
			source = "Unknown"
		}
		p.assistant.Fprintf(p.out, "#%d ", i+1)
		p.dim.Fprintf(p.out, "Relevance: %.3f  Source: %s  ID: %s\n", r.Score, source, r.ID)
		fmt.Fprintf(p.out, "   %s\n", strings.ReplaceAll(strings.TrimSpace(r.Text), "\n", "\n   "))
	}
	fmt.Fprintln(p.out)
}

func (p *ConsolePresenter) RenderStatus(connected bool, health *backend.HealthStatus) {
	if !connected || health == nil {
		p.offline.Fprintln(p.out, "● System Offline")
		return
	}
	p.online.Fprint(p.out, "● System Online")
	fmt.Fprintf(p.out, "  AI Brain: %s  Memory: %s\n",
		activeLabel(health.LLMLoaded, "Active", "Inactive"),
		activeLabel(health.VectorDBConnected, "Connected", "Offline"))
}

func (p *ConsolePresenter) RenderNotice(msg string) {
	p.notice.Fprintln(p.out, msg)
}

func activeLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const welcome = `Welcome to JARVIS AI Assistant!
Ask anything, or use /ingest and /search to work with the knowledge base.
Type /help for commands, /quit to exit`

// Run starts the interactive line REPL. Backend health is re-checked
// before every prompt; chat is refused while it is offline.
func (cb *ChatBot) Run(ctx context.Context, in io.Reader, out io.Writer, p Presenter) error {
	fmt.Fprintln(out, "=== JARVIS ===")
	fmt.Fprintf(out, "Session: %s\n", cb.session.ID)
	fmt.Fprintf(out, "Backend: %s\n", cb.client.BaseURL())
	fmt.Fprintln(out, welcome)
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	wasConnected := false
	for {
		if err := ctx.Err(); err != nil {
			break
		}

		health, _ := cb.monitor.Poll(ctx, cb.session)
		connected := cb.session.Connected()
		if first || connected != wasConnected {
			p.RenderStatus(connected, health)
			first = false
		}
		wasConnected = connected

		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		intent, err := ParseInput(input)
		if err != nil {
			p.RenderNotice(fmt.Sprintf("Error: %v", err))
			cb.logger.Warn("command error", "input", input, "error", err)
			continue
		}

		res := cb.Dispatch(ctx, intent)
		if res.Quit {
			break
		}
		Render(p, res)
	}

	if err := scanner.Err(); err != nil {
		cb.logger.Error("failed to read input", "error", err)
		return fmt.Errorf("reading input: %w", err)
	}

	cb.logger.Info("session ended", "session_id", cb.session.ID, "turns", cb.session.Len())
	fmt.Fprintln(out, "Goodbye!")
	return nil
}

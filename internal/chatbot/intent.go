package chatbot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"JarvisChat/internal/knowledge"
)

// IntentKind identifies a user action
type IntentKind int

const (
	IntentSubmit IntentKind = iota
	IntentClearHistory
	IntentToggleKB
	IntentSetFilter
	IntentSearch
	IntentIngest
	IntentIngestFile
	IntentRefreshHealth
	IntentStats
	IntentListIngested
	IntentHelp
	IntentQuit
)

func (k IntentKind) String() string {
	switch k {
	case IntentSubmit:
		return "submit"
	case IntentClearHistory:
		return "clear_history"
	case IntentToggleKB:
		return "toggle_kb"
	case IntentSetFilter:
		return "set_filter"
	case IntentSearch:
		return "search"
	case IntentIngest:
		return "ingest"
	case IntentIngestFile:
		return "ingest_file"
	case IntentRefreshHealth:
		return "refresh_health"
	case IntentStats:
		return "stats"
	case IntentListIngested:
		return "list_ingested"
	case IntentHelp:
		return "help"
	case IntentQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Intent is a user action emitted by a presenter. Text holds the prompt,
// query, category or file path depending on Kind.
type Intent struct {
	Kind     IntentKind
	Text     string
	Enabled  bool
	TopK     *int // nil uses the configured default
	Document knowledge.Document
}

// ErrUnknownCommand is returned for an unrecognized slash command
var ErrUnknownCommand = errors.New("unknown command")

// HelpText lists the slash commands
const HelpText = `Available commands:
  /clear                                 - Clear the conversation
  /kb on|off                             - Use the knowledge base when answering
  /filter [category]                     - Restrict retrieval to a category (no argument clears it)
  /search [-k N] <query>                 - Search the knowledge base
  /ingest <source> [--category c] <text> - Add text to the knowledge base
  /ingest-file <path> [category]         - Add a file to the knowledge base
  /stats                                 - Show knowledge base statistics
  /status                                - Check the backend
  /sources                               - List documents ingested in this run
  /help                                  - Show this help message
  /quit, /exit                           - Exit`

// ParseInput turns one line of user input into an Intent. Anything that is
// not a slash command is a chat prompt.
func ParseInput(line string) (Intent, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Intent{Kind: IntentSubmit, Text: line}, nil
	}

	cmd, rest := cutWord(line)
	switch cmd {
	case "/quit", "/exit":
		return Intent{Kind: IntentQuit}, nil

	case "/help":
		return Intent{Kind: IntentHelp}, nil

	case "/clear":
		return Intent{Kind: IntentClearHistory}, nil

	case "/kb":
		switch strings.ToLower(rest) {
		case "on", "true", "yes":
			return Intent{Kind: IntentToggleKB, Enabled: true}, nil
		case "off", "false", "no":
			return Intent{Kind: IntentToggleKB, Enabled: false}, nil
		default:
			return Intent{}, fmt.Errorf("usage: /kb on|off")
		}

	case "/filter":
		return Intent{Kind: IntentSetFilter, Text: rest}, nil

	case "/search":
		var topK *int
		if flag, after := cutWord(rest); flag == "-k" {
			n, query := cutWord(after)
			k, err := strconv.Atoi(n)
			if err != nil {
				return Intent{}, fmt.Errorf("usage: /search [-k N] <query>: invalid N %q", n)
			}
			topK, rest = &k, query
		}
		if rest == "" {
			return Intent{}, fmt.Errorf("usage: /search [-k N] <query>")
		}
		return Intent{Kind: IntentSearch, Text: rest, TopK: topK}, nil

	case "/ingest":
		source, after := cutWord(rest)
		category := ""
		if flag, tail := cutWord(after); flag == "--category" {
			category, after = cutWord(tail)
		}
		if source == "" || after == "" {
			return Intent{}, fmt.Errorf("usage: /ingest <source> [--category c] <text>")
		}
		return Intent{Kind: IntentIngest, Document: knowledge.Document{
			Text:     after,
			Source:   source,
			Category: category,
		}}, nil

	case "/ingest-file":
		path, category := cutWord(rest)
		if path == "" {
			return Intent{}, fmt.Errorf("usage: /ingest-file <path> [category]")
		}
		return Intent{Kind: IntentIngestFile, Text: path, Document: knowledge.Document{Category: category}}, nil

	case "/stats":
		return Intent{Kind: IntentStats}, nil

	case "/status":
		return Intent{Kind: IntentRefreshHealth}, nil

	case "/sources":
		return Intent{Kind: IntentListIngested}, nil

	default:
		return Intent{}, fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, cmd)
	}
}

// cutWord splits off the first whitespace-delimited word. rest is trimmed
// but otherwise keeps its inner spacing.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

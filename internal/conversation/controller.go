package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/session"
)

// FallbackResponse replaces an empty assistant reply
const FallbackResponse = "Unable to generate response."

var (
	ErrEmptyPrompt  = errors.New("prompt is empty")
	ErrDisconnected = errors.New("backend is not connected")
	ErrBusy         = errors.New("a chat request is already in flight")
)

// State of the controller
type State int32

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// ChatClient is the part of the backend the controller needs
type ChatClient interface {
	Chat(ctx context.Context, message string, useKnowledgeBase bool, category *string) (*backend.ChatReply, error)
}

// Exchange is one completed round-trip. Failure is set when the backend
// call failed and Assistant holds the synthesized error turn.
type Exchange struct {
	User      session.Turn
	Assistant session.Turn
	Failure   error
}

// Controller turns a user prompt into a user turn plus an assistant turn
type Controller struct {
	client ChatClient
	logger *slog.Logger
	state  atomic.Int32
}

// NewController creates a conversation controller
func NewController(client ChatClient, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client: client,
		logger: logger.With("component", "conversation"),
	}
}

// State returns whether a chat call is in flight
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Submit runs one chat round-trip against sess. A rejected submission
// (empty prompt, offline, busy) leaves the transcript untouched; any
// accepted submission grows it by exactly two turns.
func (c *Controller) Submit(ctx context.Context, sess *session.Session, prompt string) (*Exchange, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if !sess.Connected() {
		return nil, ErrDisconnected
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingResponse)) {
		return nil, ErrBusy
	}
	defer c.state.Store(int32(StateIdle))

	userTurn := session.NewTurn(session.RoleUser, prompt, nil)
	sess.Append(userTurn)

	useKB := sess.UseKnowledgeBase()
	category := sess.CategoryParam()
	c.logger.Debug("submitting prompt", "session_id", sess.ID, "use_kb", useKB, "category", derefOr(category, ""))

	reply, err := c.client.Chat(ctx, prompt, useKB, category)
	if err != nil {
		msg := "System Error: " + ErrorMessage(err)
		assistant := session.NewTurn(session.RoleAssistant, msg, nil)
		sess.Append(assistant)
		c.logger.Warn("chat failed", "session_id", sess.ID, "kind", backend.KindOf(err).String(), "error", err)
		return &Exchange{User: userTurn, Assistant: assistant, Failure: err}, nil
	}

	assistant := session.NewTurn(session.RoleAssistant, replyText(reply), replySources(reply))
	sess.Append(assistant)
	return &Exchange{User: userTurn, Assistant: assistant}, nil
}

// Clear resets the transcript only
func (c *Controller) Clear(sess *session.Session) {
	sess.Clear()
	c.logger.Info("conversation cleared", "session_id", sess.ID)
}

// ErrorMessage renders a failure the way it is shown to the user
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *backend.Error
	if !errors.As(err, &be) {
		return err.Error()
	}
	switch be.Kind {
	case backend.KindTimeout:
		return "Request timed out. The model may be processing a complex query."
	case backend.KindUnreachable:
		return "Could not connect to the API. Make sure the server is running."
	case backend.KindServerError:
		return fmt.Sprintf("API Error: %d", be.StatusCode)
	case backend.KindMalformedResponse:
		return "Received an unreadable response from the API."
	case backend.KindValidation:
		if be.Err != nil {
			return be.Err.Error()
		}
		return "Invalid request."
	default:
		if be.Err != nil {
			return be.Err.Error()
		}
		return be.Error()
	}
}

func replyText(reply *backend.ChatReply) string {
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		return FallbackResponse
	}
	return reply.Text
}

// replySources attaches sources iff the backend used retrieved context
func replySources(reply *backend.ChatReply) []session.SourceRef {
	if reply == nil || !reply.ContextUsed {
		return nil
	}
	refs := make([]session.SourceRef, 0, len(reply.Sources))
	for _, s := range reply.Sources {
		refs = append(refs, session.SourceRef{
			SourceID:  s.SourceID,
			Relevance: clampRelevance(s.Relevance),
		})
	}
	return refs
}

func clampRelevance(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

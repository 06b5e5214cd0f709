package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("do: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindUnreachable},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("no route to host")}, KindUnreachable},
		{"eof", io.ErrUnexpectedEOF, KindUnreachable},
		{"other", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTransport("chat", tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, "chat", got.Op)
		})
	}
}

func TestClassifyTransportKeepsBackendError(t *testing.T) {
	orig := &Error{Op: "search", Kind: KindValidation}
	assert.Same(t, orig, classifyTransport("chat", fmt.Errorf("wrapped: %w", orig)))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, 0, StatusCodeOf(errors.New("plain")))
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "backend chat: server error 503", (&Error{Op: "chat", Kind: KindServerError, StatusCode: 503}).Error())
	assert.Equal(t, "backend ingest: invalid request: text is required", validationError("ingest", "text is required").Error())
	assert.Equal(t, "backend health: unreachable", (&Error{Op: "health", Kind: KindUnreachable}).Error())
	assert.Equal(t, "timeout", KindTimeout.String())
}

package mailstore

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

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", timeoutErr{}, true},
		{"wrapped timeout", fmt.Errorf("imap noop: %w", timeoutErr{}), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"broken pipe", syscall.EPIPE, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"op error", &net.OpError{Op: "read", Err: errors.New("reset")}, true},
		{"connect error", &ConnectError{Op: "imap login", Err: errors.New("bad credentials")}, false},
		{"context canceled", context.Canceled, false},
		{"wrapped cancel", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"plain error", errors.New("mailbox does not exist"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	cause := errors.New("authentication rejected")
	err := &ConnectError{Op: "imap login user@example.com", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "imap login")
}

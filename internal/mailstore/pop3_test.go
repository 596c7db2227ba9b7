package mailstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	pop3client "github.com/knadh/go-pop3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePOP3Conn struct {
	msgs    []pop3client.MessageID
	raws    map[int][]byte
	authErr error
	authed  bool
	quit    bool
}

func (c *fakePOP3Conn) Auth(user, password string) error {
	if c.authErr != nil {
		return c.authErr
	}
	c.authed = true
	return nil
}

func (c *fakePOP3Conn) List(msgID int) ([]pop3client.MessageID, error) {
	return c.msgs, nil
}

func (c *fakePOP3Conn) RetrRaw(msgID int) (*bytes.Buffer, error) {
	raw, ok := c.raws[msgID]
	if !ok {
		return nil, errors.New("no such message")
	}
	return bytes.NewBuffer(raw), nil
}

func (c *fakePOP3Conn) Noop() error { return nil }

func (c *fakePOP3Conn) Quit() error {
	c.quit = true
	return nil
}

// testPOP3Store returns a store whose dialer hands out the given
// connections in order.
func testPOP3Store(conns []*fakePOP3Conn) *POP3Store {
	i := 0
	return &POP3Store{
		host:     "pop.example.com",
		port:     995,
		username: "u@example.com",
		password: "secret",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial: func() (pop3Conn, error) {
			c := conns[i]
			if i < len(conns)-1 {
				i++
			}
			return c, nil
		},
	}
}

func TestPOP3PollSeesNewMail(t *testing.T) {
	// The maildrop is frozen per connection, so each UIDs call must
	// reconnect; a message arriving between polls becomes visible.
	first := &fakePOP3Conn{
		msgs: []pop3client.MessageID{{ID: 1}, {ID: 2}},
	}
	second := &fakePOP3Conn{
		msgs: []pop3client.MessageID{{ID: 1}, {ID: 2}, {ID: 3}},
		raws: map[int][]byte{3: []byte("From: a@example.com\r\n\r\nhi")},
	}
	store := testPOP3Store([]*fakePOP3Conn{first, second})

	sess, err := store.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, first.authed)

	uids, err := sess.UIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, uids)
	assert.True(t, first.quit, "stale connection is released before redialing")
	assert.True(t, second.authed)

	raw, err := sess.Fetch(3)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hi")

	require.NoError(t, sess.Close())
	assert.True(t, second.quit)
}

func TestPOP3ConnectAuthFailure(t *testing.T) {
	conn := &fakePOP3Conn{authErr: errors.New("invalid credentials")}
	store := testPOP3Store([]*fakePOP3Conn{conn})

	_, err := store.Connect(context.Background())
	require.Error(t, err)

	var connErr *ConnectError
	assert.ErrorAs(t, err, &connErr)
	assert.False(t, IsTransient(err), "auth rejection must not trigger reconnect loops")
	assert.True(t, conn.quit)
}

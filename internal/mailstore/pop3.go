package mailstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	pop3client "github.com/knadh/go-pop3"
)

// pop3Conn is the subset of the POP3 client connection the session
// uses. *pop3client.Conn satisfies it.
type pop3Conn interface {
	Auth(user, password string) error
	List(msgID int) ([]pop3client.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Noop() error
	Quit() error
}

// POP3Store opens POP3S sessions. A POP3 maildrop is locked and static
// for a connection's lifetime, so the session reopens its connection on
// every poll to observe newly arrived mail. Message numbers ascend as
// mail arrives provided nothing else consumes the maildrop; the monitor
// only reads, so the cursor contract holds under that assumption.
type POP3Store struct {
	host     string
	port     int
	username string
	password string
	logger   *slog.Logger

	dial func() (pop3Conn, error)
}

// NewPOP3 creates a POP3 store for the given account.
func NewPOP3(host string, port int, username, password string, logger *slog.Logger) *POP3Store {
	client := pop3client.New(pop3client.Opt{
		Host:       host,
		Port:       port,
		TLSEnabled: true,
	})
	return &POP3Store{
		host:     host,
		port:     port,
		username: username,
		password: password,
		logger:   logger,
		dial:     func() (pop3Conn, error) { return client.NewConn() },
	}
}

// Connect dials the server over TLS and authenticates. It does not
// retry: the caller owns retry policy.
func (s *POP3Store) Connect(_ context.Context) (Session, error) {
	sess := &pop3Session{store: s}
	if err := sess.refresh(); err != nil {
		return nil, &ConnectError{Op: fmt.Sprintf("pop3 connect %s:%d", s.host, s.port), Err: err}
	}

	s.logger.Info("connected to mail store", "host", s.host, "protocol", "pop3")
	return sess, nil
}

type pop3Session struct {
	store *POP3Store
	conn  pop3Conn
}

// refresh replaces the current connection with a freshly authenticated
// one, releasing the maildrop lock so the server's view can advance.
func (s *pop3Session) refresh() error {
	if s.conn != nil {
		_ = s.conn.Quit()
		s.conn = nil
	}

	conn, err := s.store.dial()
	if err != nil {
		return err
	}
	if err := conn.Auth(s.store.username, s.store.password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("auth %s: %w", s.store.username, err)
	}
	s.conn = conn
	return nil
}

func (s *pop3Session) UIDs() ([]uint32, error) {
	// The maildrop view is frozen at connection time; reconnect so new
	// messages become visible.
	if err := s.refresh(); err != nil {
		return nil, fmt.Errorf("pop3 refresh: %w", err)
	}

	msgs, err := s.conn.List(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 list: %w", err)
	}

	uids := make([]uint32, 0, len(msgs))
	for _, msg := range msgs {
		uids = append(uids, uint32(msg.ID))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *pop3Session) Fetch(uid uint32) ([]byte, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("pop3 retr %d: no connection", uid)
	}
	buf, err := s.conn.RetrRaw(int(uid))
	if err != nil {
		return nil, fmt.Errorf("pop3 retr %d: %w", uid, err)
	}
	return buf.Bytes(), nil
}

func (s *pop3Session) Noop() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Noop(); err != nil {
		return fmt.Errorf("pop3 noop: %w", err)
	}
	return nil
}

func (s *pop3Session) Close() error {
	if s.conn != nil {
		_ = s.conn.Quit()
		s.conn = nil
	}
	return nil
}

package mailstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPStore opens IMAPS sessions to a remote mailbox.
type IMAPStore struct {
	host     string
	port     int
	username string
	password string
	mailbox  string
	logger   *slog.Logger
}

// NewIMAP creates an IMAP store for the given account.
func NewIMAP(host string, port int, username, password, mailbox string, logger *slog.Logger) *IMAPStore {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPStore{
		host:     host,
		port:     port,
		username: username,
		password: password,
		mailbox:  mailbox,
		logger:   logger,
	}
}

// Connect dials the server over TLS (1.2 minimum), authenticates, and
// selects the monitored mailbox. It does not retry: the caller owns
// retry policy.
func (s *IMAPStore) Connect(_ context.Context) (Session, error) {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName: s.host,
			MinVersion: tls.VersionTLS12,
		},
	})
	if err != nil {
		return nil, &ConnectError{Op: fmt.Sprintf("imap dial %s", addr), Err: err}
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		client.Close()
		return nil, &ConnectError{Op: fmt.Sprintf("imap login %s", s.username), Err: err}
	}

	if _, err := client.Select(s.mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectError{Op: fmt.Sprintf("imap select %s", s.mailbox), Err: err}
	}

	s.logger.Info("connected to mail store", "host", s.host, "mailbox", s.mailbox)
	return &imapSession{client: client}, nil
}

type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) UIDs() ([]uint32, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	imapUIDs := data.AllUIDs()
	uids := make([]uint32, 0, len(imapUIDs))
	for _, uid := range imapUIDs {
		uids = append(uids, uint32(uid))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *imapSession) Fetch(uid uint32) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch uid %d: %w", uid, err)
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("imap fetch uid %d: no data returned", uid)
	}

	raw := buffers[0].FindBodySection(bodySection)
	if len(raw) == 0 {
		return nil, fmt.Errorf("imap fetch uid %d: empty body section", uid)
	}
	return raw, nil
}

func (s *imapSession) Noop() error {
	if err := s.client.Noop().Wait(); err != nil {
		return fmt.Errorf("imap noop: %w", err)
	}
	return nil
}

// Close attempts a clean logout. Logout failures are swallowed and the
// underlying connection is closed regardless.
func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.client.Close()
	}
	return nil
}

// Package monitor runs the mailbox watch loop: keep a mail-store
// session alive, discover messages above the run's baseline, extract
// them, and hand the records to the message-store API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/wellsight/mailwatch/internal/api"
	"github.com/wellsight/mailwatch/internal/cursor"
	"github.com/wellsight/mailwatch/internal/extract"
	"github.com/wellsight/mailwatch/internal/mailstore"
)

// State is the monitor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Sink receives status reports and extracted message records.
type Sink interface {
	PutStatus(ctx context.Context, status api.Status) error
	PostMessage(ctx context.Context, rec *extract.Record) error
}

// ErrAlreadyRunning is returned by Run when the monitor is running.
var ErrAlreadyRunning = errors.New("monitor is already running")

const (
	// stopCheckInterval bounds how long a stop request can go
	// unnoticed during the idle wait.
	stopCheckInterval = 1 * time.Second

	defaultReconnectDelay = 5 * time.Second
	defaultRetryDelay     = 10 * time.Second

	// statusTimeout bounds shutdown-path status reports, which cannot
	// use the already-cancelled run context.
	statusTimeout = 10 * time.Second
)

// Monitor owns one mail-store session and the processing cursor. All
// I/O happens on the single goroutine that calls Run.
type Monitor struct {
	store        mailstore.Store
	sink         Sink
	extractor    *extract.Extractor
	pollInterval time.Duration
	logger       *slog.Logger

	// Fixed delays after a transient fault and after a failed
	// reconnect. Overridable in tests.
	reconnectDelay time.Duration
	retryDelay     time.Duration

	cursor    cursor.Tracker
	processed int

	mu    sync.Mutex
	state State
}

// New creates a Monitor. The extractor's attachment directory must
// already exist.
func New(store mailstore.Store, sink Sink, extractor *extract.Extractor, pollInterval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		store:          store,
		sink:           sink,
		extractor:      extractor,
		pollInterval:   pollInterval,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
		retryDelay:     defaultRetryDelay,
		state:          StateStopped,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Processed returns the number of messages handed off in this run.
func (m *Monitor) Processed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

// Run starts monitoring and blocks until ctx is cancelled or a
// non-transient fault occurs. Cancelling ctx is the stop request; the
// loop observes it within one second. Run returns ErrAlreadyRunning if
// called while a previous Run is still active.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		m.logger.Warn("monitor is already running")
		return ErrAlreadyRunning
	}
	m.state = StateStarting
	m.processed = 0
	m.mu.Unlock()

	m.logger.Info("starting mailbox monitor", "poll_interval", m.pollInterval)
	m.reportStarted(ctx)

	sess, err := m.store.Connect(ctx)
	if err != nil {
		m.logger.Error("connection failed", "error", err)
		m.reportStopped(err)
		m.setState(StateStopped)
		return err
	}

	uids, err := sess.UIDs()
	if err != nil {
		err = fmt.Errorf("baseline query: %w", err)
		m.logger.Error("baseline failed", "error", err)
		sess.Close()
		m.reportStopped(err)
		m.setState(StateStopped)
		return err
	}
	m.cursor.Baseline(uids)
	m.logger.Info("monitoring for new messages", "baseline_uid", m.cursor.Last())

	m.setState(StateRunning)
	runErr := m.loop(ctx, sess)

	m.setState(StateStopping)
	m.reportStopped(runErr)
	m.setState(StateStopped)
	m.logger.Info("mailbox monitor stopped", "processed", m.Processed())
	return runErr
}

// loop drives poll cycles until ctx is cancelled or a non-transient
// fault occurs. It owns the session handle, replacing it across
// reconnects, and always closes it before returning.
func (m *Monitor) loop(ctx context.Context, sess mailstore.Session) error {
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if sess == nil {
			var err error
			sess, err = m.store.Connect(ctx)
			if err != nil {
				m.logger.Warn("reconnect failed", "error", err)
				if !m.sleep(ctx, m.retryDelay) {
					return nil
				}
				continue
			}
		}

		err := m.cycle(ctx, sess)
		switch {
		case err == nil:
			if !m.sleep(ctx, m.pollInterval) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		case mailstore.IsTransient(err):
			m.logger.Warn("transient mail-store error, reconnecting", "error", err)
			sess.Close()
			sess = nil
			if !m.sleep(ctx, m.reconnectDelay) {
				return nil
			}
		default:
			m.logger.Error("monitoring loop failed", "error", err)
			return err
		}
	}
}

// cycle performs one poll: keepalive, candidate discovery, and
// per-message processing in ascending identifier order.
func (m *Monitor) cycle(ctx context.Context, sess mailstore.Session) error {
	if err := sess.Noop(); err != nil {
		return err
	}

	uids, err := sess.UIDs()
	if err != nil {
		return err
	}

	candidates := m.cursor.Candidates(uids)
	if len(candidates) == 0 {
		m.logger.Debug("no new messages", "cursor", m.cursor.Last())
		return nil
	}

	m.logger.Info("found new messages", "count", len(candidates))

	for _, uid := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		ok, err := m.processOne(ctx, sess, uid)
		if err != nil {
			return err
		}
		if !ok {
			// The cursor must stay a contiguous prefix of completed
			// work: stop the batch so this identifier and everything
			// after it reappear in the next poll's candidates.
			return nil
		}
	}
	return nil
}

// processOne fetches, extracts, and hands off a single message. A
// failure isolated to the message is logged and reported as ok=false
// without advancing the cursor, so the identifier is retried on the
// next poll. Only transient session faults return an error.
func (m *Monitor) processOne(ctx context.Context, sess mailstore.Session, uid uint32) (bool, error) {
	raw, err := sess.Fetch(uid)
	if err != nil {
		if mailstore.IsTransient(err) {
			return false, err
		}
		m.logger.Error("fetch failed", "uid", uid, "error", err)
		return false, nil
	}

	rec, parts := m.extractor.Extract(strconv.FormatUint(uint64(uid), 10), raw)
	for _, p := range parts {
		if p.Status != extract.PartSaved {
			m.logger.Debug("attachment not saved",
				"uid", uid, "original", p.OriginalName,
				"status", string(p.Status), "reason", p.Reason)
		}
	}

	m.logger.Info("processing message",
		"uid", uid, "from", rec.From, "subject", rec.Subject,
		"attachments", len(rec.Attachments))

	if err := m.sink.PostMessage(ctx, rec); err != nil {
		m.logger.Error("hand-off failed", "uid", uid, "error", err)
		return false, nil
	}

	m.cursor.Advance(uid)
	m.mu.Lock()
	m.processed++
	processed := m.processed
	m.mu.Unlock()

	m.reportProgress(ctx, processed)
	return true, nil
}

// sleep waits for d, checking for cancellation every second. It
// returns false when ctx was cancelled.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > stopCheckInterval {
			remaining = stopCheckInterval
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}

// Status reports are best-effort: failures are logged and never alter
// the monitor's own state.

func (m *Monitor) reportStarted(ctx context.Context) {
	status := api.Status{
		IsRunning:   true,
		LastStarted: time.Now().UnixMilli(),
	}
	if err := m.sink.PutStatus(ctx, status); err != nil {
		m.logger.Warn("status report failed", "error", err)
	}
}

func (m *Monitor) reportProgress(ctx context.Context, processed int) {
	status := api.Status{
		IsRunning:       true,
		EmailsProcessed: strconv.Itoa(processed),
	}
	if err := m.sink.PutStatus(ctx, status); err != nil {
		m.logger.Warn("status report failed", "error", err)
	}
}

// reportStopped uses a fresh context: the run context is typically
// already cancelled on this path.
func (m *Monitor) reportStopped(runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	status := api.Status{
		IsRunning:   false,
		LastStopped: time.Now().UnixMilli(),
	}
	if runErr != nil {
		status.LastError = runErr.Error()
	}
	if err := m.sink.PutStatus(ctx, status); err != nil {
		m.logger.Warn("status report failed", "error", err)
	}
}

package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	imapclient "github.com/phd59fr/mailbridge/internal/imap"
	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/models"
)

const (
	// Reconnect backoff: doubling from backoffBase, capped at backoffMax.
	// After maxBackoffSteps the watcher keeps retrying at backoffMax forever.
	backoffBase     = 5 * time.Second
	backoffMax      = 5 * time.Minute
	maxBackoffSteps = 6

	// An IDLE session is cycled at this interval even without server
	// activity, so dead connections are noticed.
	keepAliveInterval = 5 * time.Minute
)

// Watcher owns one IMAP session for one account and emits every newly
// appeared message exactly once per connection. Messages already present
// when the connection is established form the watermark and are never
// emitted by that connection.
type Watcher struct {
	account   models.Account
	interval  time.Duration
	newClient func() imapclient.Client
	out       chan<- models.RawEmail

	seen      map[uint32]struct{}
	connected atomic.Bool
}

// New creates a watcher for one account. The client factory is invoked on
// every (re)connection attempt.
func New(account models.Account, interval time.Duration, newClient func() imapclient.Client, out chan<- models.RawEmail) *Watcher {
	return &Watcher{
		account:   account,
		interval:  interval,
		newClient: newClient,
		out:       out,
	}
}

// Connected reports whether the watcher currently holds a live session.
func (w *Watcher) Connected() bool {
	return w.connected.Load()
}

// Run drives the watcher until ctx is cancelled. Connection and protocol
// failures are absorbed with backoff and never surface to the caller.
func (w *Watcher) Run(ctx context.Context) {
	locallog := logging.Log.WithField("account", w.account.Label)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		client, err := w.connect()
		if err != nil {
			failures++
			wait := reconnectBackoff(failures)
			locallog.Errorf("Connection attempt %d failed, retrying in %s: %v", failures, wait, err)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		failures = 0
		w.connected.Store(true)
		locallog.Infof("Connected, watermark holds %d messages", len(w.seen))

		if w.account.Idle() {
			if ok, err := client.SupportsIdle(); err == nil && ok {
				w.idleLoop(ctx, client, locallog)
			} else {
				locallog.Info("IDLE not supported by server, falling back to polling")
				w.pollLoop(ctx, client, locallog)
			}
		} else {
			w.pollLoop(ctx, client, locallog)
		}

		w.connected.Store(false)
		_ = client.Close()

		if ctx.Err() != nil {
			return
		}
	}
}

// connect dials, authenticates, selects the mailbox and captures the
// current UID set as the watermark for this connection.
func (w *Watcher) connect() (imapclient.Client, error) {
	client := w.newClient()

	if err := client.Connect(w.account.Addr()); err != nil {
		return nil, err
	}
	if err := client.Login(w.account.Email, w.account.Password); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Select(w.account.Mailbox()); err != nil {
		_ = client.Close()
		return nil, err
	}

	uids, err := client.ListUIDs()
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	w.seen = make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		w.seen[uid] = struct{}{}
	}

	return client, nil
}

// idleLoop waits for server-pushed activity, diffing the mailbox on every
// wakeup. Returns when the connection fails or ctx is cancelled.
func (w *Watcher) idleLoop(ctx context.Context, client imapclient.Client, locallog *logrus.Entry) {
	locallog.Info("Watching in IDLE mode")

	for {
		stop := make(chan struct{})
		done := make(chan error, 1)
		go func() { done <- client.Idle(stop) }()

		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return

		case err := <-done:
			// IDLE ended on its own, the connection is gone.
			if err != nil {
				locallog.Errorf("IDLE error: %v", err)
			}
			return

		case <-client.Updates():
			close(stop)
			if err := <-done; err != nil {
				locallog.Errorf("IDLE error: %v", err)
				return
			}
			if !w.checkNew(ctx, client, locallog) {
				return
			}

		case <-time.After(keepAliveInterval):
			close(stop)
			if err := <-done; err != nil {
				locallog.Errorf("IDLE error: %v", err)
				return
			}
			if err := client.Noop(); err != nil {
				locallog.Errorf("Keepalive NOOP failed: %v", err)
				return
			}
		}
	}
}

// pollLoop re-checks the mailbox at the configured interval. Returns when
// the connection fails or ctx is cancelled.
func (w *Watcher) pollLoop(ctx context.Context, client imapclient.Client, locallog *logrus.Entry) {
	locallog.Infof("Watching in polling mode, interval %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.checkNew(ctx, client, locallog) {
				return
			}
		}
	}
}

// checkNew diffs the current UID set against the watermark and emits every
// new message in server-observed order. A UID whose fetch fails is skipped
// and stays outside the watermark, so it is retried on the next cycle.
// Returns false when the connection is no longer usable.
func (w *Watcher) checkNew(ctx context.Context, client imapclient.Client, locallog *logrus.Entry) bool {
	uids, err := client.ListUIDs()
	if err != nil {
		locallog.Errorf("Error listing messages: %v", err)
		return false
	}

	current := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		current[uid] = struct{}{}
	}

	for _, uid := range uids {
		if _, ok := w.seen[uid]; ok {
			continue
		}

		raw, internalDate, err := client.FetchRaw(uid)
		if err != nil {
			locallog.Errorf("Error fetching message UID %d, will retry: %v", uid, err)
			delete(current, uid)
			continue
		}

		email := models.RawEmail{
			AccountLabel: w.account.Label,
			AccountEmail: w.account.Email,
			UID:          uid,
			Raw:          raw,
			InternalDate: internalDate,
			TraceID:      uuid.New().String(),
		}

		select {
		case w.out <- email:
		case <-ctx.Done():
			return false
		}
	}

	// Expunged UIDs fall out of the watermark here; fetch failures were
	// already removed from the current set above.
	w.seen = current
	return true
}

// reconnectBackoff returns the wait before the given (1-based) failed attempt is retried.
func reconnectBackoff(failures int) time.Duration {
	n := failures - 1
	if n > maxBackoffSteps {
		n = maxBackoffSteps
	}

	backoff := backoffBase * time.Duration(1<<n)
	if backoff > backoffMax {
		backoff = backoffMax
	}
	return backoff
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package watcher

import (
	"context"
	"time"

	imapclient "github.com/phd59fr/mailbridge/internal/imap"
	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/models"
)

const (
	// Bounded hand-off to the dispatcher. Watchers block when it is full,
	// which pushes back on ingestion instead of growing memory.
	outputBuffer = 64

	// A watcher that has not stopped within this window is abandoned.
	joinTimeout = 5 * time.Second
)

// AccountStatus is one account's liveness snapshot for observability.
type AccountStatus struct {
	Label     string
	Email     string
	Connected bool
}

// Supervisor owns the full set of account watchers and merges their output
// into a single ingestion stream.
type Supervisor struct {
	watchers []*Watcher
	out      chan models.RawEmail
	cancel   context.CancelFunc
	done     []chan struct{}
}

// NewSupervisor creates one watcher per configured account, all feeding a
// shared bounded output channel.
func NewSupervisor(cfg *models.Config, newClient func() imapclient.Client) *Supervisor {
	s := &Supervisor{
		out: make(chan models.RawEmail, outputBuffer),
	}
	for _, account := range cfg.Accounts {
		s.watchers = append(s.watchers, New(account, time.Duration(cfg.CheckInterval), newClient, s.out))
	}
	return s
}

// Output returns the merged ingestion stream. Arrival order is meaningful
// per account only.
func (s *Supervisor) Output() <-chan models.RawEmail {
	return s.out
}

// Start launches every watcher concurrently.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	logging.Log.Infof("Starting %d account watchers", len(s.watchers))
	for _, w := range s.watchers {
		done := make(chan struct{})
		s.done = append(s.done, done)
		go func(w *Watcher) {
			defer close(done)
			w.Run(ctx)
		}(w)
	}
}

// Stop signals every watcher to shut down and waits for each with a
// bounded join timeout.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	for i, done := range s.done {
		select {
		case <-done:
		case <-time.After(joinTimeout):
			logging.Log.Warnf("Watcher for account %q did not stop in time, abandoning", s.watchers[i].account.Label)
		}
	}
	logging.Log.Info("All account watchers stopped")
}

// Status reports per-account connection liveness.
func (s *Supervisor) Status() []AccountStatus {
	status := make([]AccountStatus, 0, len(s.watchers))
	for _, w := range s.watchers {
		status = append(status, AccountStatus{
			Label:     w.account.Label,
			Email:     w.account.Email,
			Connected: w.Connected(),
		})
	}
	return status
}

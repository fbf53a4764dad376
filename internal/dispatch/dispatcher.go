package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/mailparse"
	"github.com/phd59fr/mailbridge/internal/models"
	"github.com/phd59fr/mailbridge/internal/store"
)

// ErrDestinationGone classifies a send failure as permanent: the chat no
// longer exists or the bot was removed from it. The dispatcher deactivates
// such destinations instead of retrying them forever.
var ErrDestinationGone = errors.New("destination permanently unreachable")

// Notifier is the notification-surface collaborator. Send returns the
// platform-assigned delivery id used later for acknowledgment.
type Notifier interface {
	Send(ctx context.Context, chatID int64, email *models.Email) (int64, error)
}

const defaultSendTimeout = 30 * time.Second

// Dispatcher consumes the merged ingestion stream, deduplicates candidates
// against the fingerprint store and fans each message out to every
// eligible destination with at-most-once delivery per pair.
type Dispatcher struct {
	parser      *mailparse.Parser
	store       *store.Store
	notifier    Notifier
	in          <-chan models.RawEmail
	sendTimeout time.Duration
}

// NewDispatcher creates a dispatcher reading from the supervisor's output stream.
func NewDispatcher(parser *mailparse.Parser, st *store.Store, notifier Notifier, in <-chan models.RawEmail) *Dispatcher {
	return &Dispatcher{
		parser:      parser,
		store:       st,
		notifier:    notifier,
		in:          in,
		sendTimeout: defaultSendTimeout,
	}
}

// Run processes candidates until ctx is cancelled. All per-item failures
// are contained at the item level.
func (d *Dispatcher) Run(ctx context.Context) {
	logging.Log.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("Dispatcher stopped")
			return
		case item := <-d.in:
			d.process(ctx, item)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, item models.RawEmail) {
	locallog := logging.Log.WithField("trace_id", item.TraceID).WithField("account", item.AccountLabel)

	email, err := d.parser.Parse(item)
	if err != nil {
		locallog.Errorf("Dropping unparseable message UID %d: %v", item.UID, err)
		return
	}

	if email.Spam {
		locallog.Infof("Dropping spam/auto-reply email: %s", email.Subject)
		return
	}

	messageID, err := d.store.InsertMessage(ctx, email)
	if err != nil {
		locallog.Errorf("Error persisting message: %v", err)
		return
	}

	destinations, err := d.store.ActiveDestinations(ctx)
	if err != nil {
		locallog.Errorf("Error listing destinations: %v", err)
		return
	}

	for _, dest := range destinations {
		if !dest.Eligible(email.AccountLabel) {
			continue
		}
		d.deliver(ctx, locallog, email, messageID, dest)
	}
}

// deliver attempts one destination. Failures are isolated: one
// destination's error never blocks delivery to the others.
func (d *Dispatcher) deliver(ctx context.Context, locallog *logrus.Entry, email *models.Email, messageID int64, dest models.Destination) {
	exists, err := d.store.DeliveryExists(ctx, messageID, dest.ID)
	if err != nil {
		locallog.Errorf("Error checking delivery for chat %d: %v", dest.ChatID, err)
		return
	}
	if exists {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	deliveryID, err := d.notifier.Send(sendCtx, dest.ChatID, email)
	cancel()

	if err != nil {
		if errors.Is(err, ErrDestinationGone) {
			locallog.Warnf("Destination %q is gone, deactivating: %v", dest.Title, err)
			if derr := d.store.Deactivate(ctx, dest.ID); derr != nil {
				locallog.Errorf("Error deactivating destination %d: %v", dest.ID, derr)
			}
			return
		}
		locallog.Errorf("Error sending to chat %d: %v", dest.ChatID, err)
		return
	}

	if err := d.store.InsertDelivery(ctx, messageID, dest.ID, deliveryID); err != nil {
		locallog.Errorf("Error recording delivery for chat %d: %v", dest.ChatID, err)
		return
	}

	locallog.Infof("Notified %q about: %s", dest.Title, email.Subject)
}

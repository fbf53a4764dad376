package imap

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

type StandardClient struct {
	client  *client.Client
	timeout time.Duration
	signals chan struct{}
	done    chan struct{}
}

// NewStandardClient creates a new StandardClient with a default timeout of 30 seconds for IMAP operations
func NewStandardClient() *StandardClient {
	return &StandardClient{
		timeout: 30 * time.Second,
	}
}

// Connect establishes a secure connection to the IMAP server using TLS. It returns an error if the connection fails.
func (c *StandardClient) Connect(addr string) error {
	cl, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("IMAP connection error: %w", err)
	}
	c.client = cl

	// Collapse the server's unilateral updates into a coalesced "mailbox
	// changed" signal so callers never have to drain protocol events.
	updates := make(chan client.Update, 128)
	cl.Updates = updates
	c.signals = make(chan struct{}, 1)
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		for {
			select {
			case <-done:
				return
			case <-updates:
				select {
				case c.signals <- struct{}{}:
				default:
				}
			}
		}
	}(c.done)

	return nil
}

// Login authenticates the user with the IMAP server using the provided username and password. It returns an error if authentication fails or if there is no active connection.
func (c *StandardClient) Login(user, password string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Login(user, password)
}

// Select selects the specified mailbox (e.g., "INBOX") for subsequent operations. It returns an error if the mailbox cannot be selected or if there is no active connection.
func (c *StandardClient) Select(mailbox string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	_, err := c.client.Select(mailbox, false)
	return err
}

// ListUIDs returns the UIDs of every message currently in the selected
// mailbox. Watchers diff successive results against their watermark to
// detect new mail.
func (c *StandardClient) ListUIDs() ([]uint32, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	uids, err := c.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("error listing message UIDs: %w", err)
	}

	return uids, nil
}

// FetchRaw retrieves the full raw RFC822 bytes and the internal date of the message with the given UID.
func (c *StandardClient) FetchRaw(uid uint32) ([]byte, time.Time, error) {
	if c.client == nil {
		return nil, time.Time{}, fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchInternalDate, imap.FetchUid}

	prevTimeout := c.client.Timeout
	c.client.Timeout = c.timeout
	defer func() { c.client.Timeout = prevTimeout }()

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}

	if err := <-done; err != nil {
		return nil, time.Time{}, fmt.Errorf("error fetching message UID %d: %w", uid, err)
	}

	if msg == nil {
		return nil, time.Time{}, fmt.Errorf("no message retrieved for UID %d", uid)
	}

	r := msg.GetBody(section)
	if r == nil {
		return nil, time.Time{}, fmt.Errorf("no body section for UID %d", uid)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("error reading body of UID %d: %w", uid, err)
	}

	return raw, msg.InternalDate, nil
}

// SupportsIdle reports whether the server advertises the IDLE capability.
func (c *StandardClient) SupportsIdle() (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("not connected")
	}
	return c.client.Support("IDLE")
}

// Idle blocks in IMAP IDLE until the stop channel is closed or the
// connection fails. Mailbox activity observed while idling is surfaced on
// Updates.
func (c *StandardClient) Idle(stop <-chan struct{}) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Idle(stop, nil)
}

// Updates returns the coalesced mailbox-activity signal channel for the current connection.
func (c *StandardClient) Updates() <-chan struct{} {
	return c.signals
}

// Noop sends a NOOP to keep the connection alive.
func (c *StandardClient) Noop() error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Noop()
}

// Close logs out from the IMAP server and closes the connection. It returns an error if the logout operation fails. If there is no active connection, it simply returns nil.
func (c *StandardClient) Close() error {
	if c.client == nil {
		return nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	err := c.client.Logout()
	c.client = nil
	return err
}

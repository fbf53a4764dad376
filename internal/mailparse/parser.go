package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/phd59fr/mailbridge/internal/models"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ErrParse marks raw input that could not be turned into a canonical
// record. The caller drops such messages.
var ErrParse = errors.New("malformed email")

var (
	urlRe        = regexp.MustCompile(`https?://\S+`)
	addressRe    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	autoReplyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)auto.?reply`),
		regexp.MustCompile(`(?i)automatic.?reply`),
		regexp.MustCompile(`(?i)out.?of.?office`),
		regexp.MustCompile(`(?i)vacation.?reply`),
		regexp.MustCompile(`(?i)away.?from.?office`),
		regexp.MustCompile(`(?i)be.?back.?on`),
	}
	noReplyRe = regexp.MustCompile(`no.?reply|donotreply|postmaster|mailer.?daemon`)

	signatureRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)--\s*\n.*`),
		regexp.MustCompile(`(?is)Sent from my.*`),
		regexp.MustCompile(`(?is)Get Outlook for.*`),
		regexp.MustCompile(`(?is)This email and any attachments.*`),
		regexp.MustCompile(`(?is)CONFIDENTIAL.*`),
		regexp.MustCompile(`(?is)This message contains.*confidential.*`),
	}
)

// Parser turns raw message bytes into a canonical, spam-classified record.
// It is a pure transformation: no I/O, no shared state.
type Parser struct {
	maxPreviewLength int
	spamKeywords     []string
}

// NewParser creates a Parser with the configured preview bound and spam keyword list.
func NewParser(maxPreviewLength int, spamKeywords []string) *Parser {
	keywords := make([]string, 0, len(spamKeywords))
	for _, kw := range spamKeywords {
		keywords = append(keywords, strings.ToLower(kw))
	}
	return &Parser{
		maxPreviewLength: maxPreviewLength,
		spamKeywords:     keywords,
	}
}

// Parse extracts sender, subject, body preview, date and spam flag from a
// raw message. Malformed input yields ErrParse, never a partial record.
func (p *Parser) Parse(item models.RawEmail) (*models.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(item.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	header := mr.Header

	email := &models.Email{
		MessageID:    strings.TrimSpace(header.Get("Message-Id")),
		AccountLabel: item.AccountLabel,
		AccountEmail: item.AccountEmail,
		TraceID:      item.TraceID,
	}

	email.Sender = extractSender(header)

	subject, err := DecodeHeader(header.Get("Subject"))
	if err != nil || subject == "" {
		subject = "No Subject"
	}
	email.Subject = subject

	// A bad date never fails the whole parse, processing time stands in.
	if date, err := header.Date(); err == nil && !date.IsZero() {
		email.Received = date
	} else if !item.InternalDate.IsZero() {
		email.Received = item.InternalDate
	} else {
		email.Received = time.Now()
	}

	body := extractBody(mr)
	email.Preview = p.makePreview(body)
	email.Spam = p.isSpam(email.Sender, email.Subject, body)

	return email, nil
}

// extractSender renders the From header as "Name <addr>" when a display
// name is present, falling back to a bare address scan.
func extractSender(header mail.Header) string {
	if fromList, err := header.AddressList("From"); err == nil && len(fromList) > 0 {
		from := fromList[0]
		if from.Name != "" {
			return fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		if from.Address != "" {
			return from.Address
		}
	}

	if addr := addressRe.FindString(header.Get("From")); addr != "" {
		return addr
	}
	return "Unknown Sender"
}

// extractBody walks the MIME parts, preferring text/plain and reducing
// text/html to text only when no plain part exists.
func extractBody(mr *mail.Reader) string {
	var plainParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}

		switch contentType {
		case "text/plain":
			if body, err := io.ReadAll(part.Body); err == nil {
				plainParts = append(plainParts, string(body))
			}
		case "text/html":
			if body, err := io.ReadAll(part.Body); err == nil {
				htmlParts = append(htmlParts, string(body))
			}
		}
	}

	var body string
	if len(plainParts) > 0 {
		body = strings.Join(plainParts, "\n")
	} else if len(htmlParts) > 0 {
		body = htmlToText(strings.Join(htmlParts, "\n"))
	}

	return cleanText(body)
}

// cleanText collapses whitespace and strips common signature boilerplate.
func cleanText(text string) string {
	if text == "" {
		return ""
	}

	text = whitespaceRe.ReplaceAllString(text, " ")

	for _, re := range signatureRes {
		text = re.ReplaceAllString(text, "")
	}

	return strings.TrimSpace(text)
}

// makePreview elides URLs and truncates to the configured bound. The
// truncated form is exactly maxPreviewLength characters including the
// ellipsis marker.
func (p *Parser) makePreview(text string) string {
	if text == "" {
		return "No content"
	}

	text = urlRe.ReplaceAllString(text, "[URL]")

	runes := []rune(text)
	if len(runes) > p.maxPreviewLength {
		return string(runes[:p.maxPreviewLength-3]) + "..."
	}
	return text
}

// isSpam classifies over the concatenation of sender, subject and body:
// configured keywords, auto-reply phrases, and no-reply sender addresses.
// Absence of evidence means not spam.
func (p *Parser) isSpam(sender, subject, body string) bool {
	combined := strings.ToLower(sender + " " + subject + " " + body)

	for _, keyword := range p.spamKeywords {
		if strings.Contains(combined, keyword) {
			return true
		}
	}

	for _, re := range autoReplyRes {
		if re.MatchString(combined) {
			return true
		}
	}

	return noReplyRe.MatchString(strings.ToLower(sender))
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

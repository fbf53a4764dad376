package mailparse

import (
	"strings"
	"testing"
	"time"

	"github.com/phd59fr/mailbridge/internal/models"
)

var defaultKeywords = []string{
	"unsubscribe", "no-reply", "noreply", "auto-reply", "automatic reply",
	"out of office", "vacation", "away from office",
}

func rawMessage(from, subject, contentType, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: team@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Message-Id: <test-1234@example.com>\r\n")
	b.WriteString("Date: Mon, 02 Jan 2023 15:04:05 +0000\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func parseRaw(t *testing.T, p *Parser, raw []byte) *models.Email {
	t.Helper()

	email, err := p.Parse(models.RawEmail{
		AccountLabel: "sales",
		AccountEmail: "sales@example.com",
		Raw:          raw,
		TraceID:      "test-trace",
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return email
}

func TestParseBasic(t *testing.T) {
	p := NewParser(600, nil)

	email := parseRaw(t, p, rawMessage(
		"Alice <alice@example.com>", "Quarterly report", "text/plain; charset=utf-8",
		"Here is the quarterly report you asked for."))

	if email.Sender != "Alice <alice@example.com>" {
		t.Errorf("Sender = %q, want 'Alice <alice@example.com>'", email.Sender)
	}
	if email.Subject != "Quarterly report" {
		t.Errorf("Subject = %q, want 'Quarterly report'", email.Subject)
	}
	if email.MessageID != "<test-1234@example.com>" {
		t.Errorf("MessageID = %q", email.MessageID)
	}
	if email.Preview != "Here is the quarterly report you asked for." {
		t.Errorf("Preview = %q", email.Preview)
	}
	if email.Spam {
		t.Error("Expected non-spam classification")
	}

	wantDate := time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)
	if !email.Received.Equal(wantDate) {
		t.Errorf("Received = %v, want %v", email.Received, wantDate)
	}
	if email.AccountLabel != "sales" {
		t.Errorf("AccountLabel = %q, want 'sales'", email.AccountLabel)
	}
}

func TestParseBadDateFallsBack(t *testing.T) {
	p := NewParser(600, nil)

	raw := []byte("From: a@example.com\r\n" +
		"Subject: hi\r\n" +
		"Date: not a date at all\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\nbody")

	internal := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	email, err := p.Parse(models.RawEmail{Raw: raw, InternalDate: internal})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if !email.Received.Equal(internal) {
		t.Errorf("Received = %v, want internal date %v", email.Received, internal)
	}
}

func TestParseMalformed(t *testing.T) {
	p := NewParser(600, nil)

	_, err := p.Parse(models.RawEmail{Raw: []byte("this is not an email at all")})
	if err == nil {
		t.Fatal("Expected parse error for malformed input")
	}
}

func TestParseHTMLBody(t *testing.T) {
	p := NewParser(600, nil)

	html := `<html><head><style>body { color: red; }</style>` +
		`<script>alert("hi")</script></head>` +
		`<body><p>Hello</p><p>from HTML</p></body></html>`

	email := parseRaw(t, p, rawMessage("a@example.com", "html mail", "text/html; charset=utf-8", html))

	if strings.Contains(email.Preview, "alert") || strings.Contains(email.Preview, "color") {
		t.Errorf("Preview leaked script/style content: %q", email.Preview)
	}
	if !strings.Contains(email.Preview, "Hello") || !strings.Contains(email.Preview, "from HTML") {
		t.Errorf("Preview lost text content: %q", email.Preview)
	}
}

func TestPreviewTruncation(t *testing.T) {
	p := NewParser(600, nil)

	body := strings.Repeat("a", 10000)
	email := parseRaw(t, p, rawMessage("a@example.com", "long", "text/plain", body))

	if got := len([]rune(email.Preview)); got != 600 {
		t.Errorf("Preview length = %d, want exactly 600", got)
	}
	if !strings.HasSuffix(email.Preview, "...") {
		t.Errorf("Preview does not end in ellipsis")
	}
}

func TestPreviewURLPlaceholder(t *testing.T) {
	p := NewParser(600, nil)

	email := parseRaw(t, p, rawMessage("a@example.com", "link", "text/plain",
		"Check this out: https://example.com/some/very/long/path?with=query"))

	if strings.Contains(email.Preview, "https://") {
		t.Errorf("Preview still contains a URL: %q", email.Preview)
	}
	if !strings.Contains(email.Preview, "[URL]") {
		t.Errorf("Preview missing URL placeholder: %q", email.Preview)
	}
}

func TestPreviewEmptyBody(t *testing.T) {
	p := NewParser(600, nil)

	email := parseRaw(t, p, rawMessage("a@example.com", "empty", "text/plain", ""))

	if email.Preview != "No content" {
		t.Errorf("Preview = %q, want 'No content'", email.Preview)
	}
}

func TestSpamClassification(t *testing.T) {
	p := NewParser(600, defaultKeywords)

	tests := []struct {
		name    string
		from    string
		subject string
		body    string
		spam    bool
	}{
		{
			name:    "Mailer daemon sender",
			from:    "mailer-daemon@x.com",
			subject: "Delivery failure",
			body:    "Your message could not be delivered",
			spam:    true,
		},
		{
			name:    "Out of office body",
			from:    "colleague@example.com",
			subject: "Re: meeting",
			body:    "I am currently out of office until Monday",
			spam:    true,
		},
		{
			name:    "Auto-reply subject",
			from:    "someone@example.com",
			subject: "Automatic Reply: your request",
			body:    "I will respond when I return",
			spam:    true,
		},
		{
			name:    "Postmaster sender",
			from:    "postmaster@example.com",
			subject: "Status",
			body:    "Report attached",
			spam:    true,
		},
		{
			name:    "Configured keyword",
			from:    "news@example.com",
			subject: "Weekly digest",
			body:    "Click here to unsubscribe from this list",
			spam:    true,
		},
		{
			name:    "Clean business email",
			from:    "customer@example.com",
			subject: "Order question",
			body:    "Where is my package?",
			spam:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := parseRaw(t, p, rawMessage(tt.from, tt.subject, "text/plain", tt.body))
			if email.Spam != tt.spam {
				t.Errorf("Spam = %v, want %v", email.Spam, tt.spam)
			}
		})
	}
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Plain ASCII",
			input:    "Hello World",
			expected: "Hello World",
			wantErr:  false,
		},
		{
			name:     "UTF-8 encoded",
			input:    "=?UTF-8?Q?Important_:_comment_mettre_=C3=A0_jour?=",
			expected: "Important : comment mettre à jour",
			wantErr:  false,
		},
		{
			name:     "ISO-8859-1 encoded",
			input:    "=?ISO-8859-1?Q?Caf=E9?=",
			expected: "Café",
			wantErr:  false,
		},
		{
			name:     "Base64 encoded",
			input:    "=?UTF-8?B?SGVsbG8gV29ybGQ=?=",
			expected: "Hello World",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("DecodeHeader() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractSenderFallback(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "Name and address",
			header:   `"Billing Team" <billing@example.com>`,
			expected: "Billing Team <billing@example.com>",
		},
		{
			name:     "Bare address",
			header:   "billing@example.com",
			expected: "billing@example.com",
		},
		{
			name:     "No address at all",
			header:   "Just some text",
			expected: "Unknown Sender",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte("From: " + tt.header + "\r\nSubject: s\r\nContent-Type: text/plain\r\n\r\nbody")
			p := NewParser(600, nil)
			email, err := p.Parse(models.RawEmail{Raw: raw})
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if email.Sender != tt.expected {
				t.Errorf("Sender = %q, want %q", email.Sender, tt.expected)
			}
		})
	}
}

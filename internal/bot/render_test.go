package bot

import (
	"strings"
	"testing"

	"github.com/phd59fr/mailbridge/internal/models"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Plain text untouched",
			input:    "Hello World",
			expected: "Hello World",
		},
		{
			name:     "Dots and dashes",
			input:    "alice@example.com - re: order no. 5",
			expected: "alice@example\\.com \\- re: order no\\. 5",
		},
		{
			name:     "Markup characters",
			input:    "*bold* _italic_ [link](url)",
			expected: "\\*bold\\* \\_italic\\_ \\[link\\]\\(url\\)",
		},
		{
			name:     "Angle brackets and bang",
			input:    "Alice <alice@example.com>!",
			expected: "Alice <alice@example\\.com\\>\\!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdown(tt.input); got != tt.expected {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRenderEmail(t *testing.T) {
	email := &models.Email{
		AccountLabel: "sales",
		AccountEmail: "sales@example.com",
		Sender:       "Alice <alice@example.com>",
		Subject:      "Order #42 (urgent)",
		Preview:      "Please confirm by EOD.",
	}

	got := RenderEmail(email)

	for _, want := range []string{
		"📧 *New Email*",
		"📬 *Inbox:* sales \\(sales@example\\.com\\)",
		"👤 *From:* Alice <alice@example\\.com\\>",
		"📝 *Subject:* Order \\#42 \\(urgent\\)",
		"📄 *Preview:*\nPlease confirm by EOD\\.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderEmail() missing %q in:\n%s", want, got)
		}
	}

	// Nothing from the email may reach Telegram unescaped.
	if strings.Contains(got, "#42 (urgent)") {
		t.Error("Subject rendered without escaping")
	}
}

package bot

import (
	"fmt"
	"strings"

	"github.com/phd59fr/mailbridge/internal/models"
)

// markdownV2Replacer escapes every character Telegram's MarkdownV2 parse
// mode treats as markup.
var markdownV2Replacer = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!",
)

func escapeMarkdown(text string) string {
	return markdownV2Replacer.Replace(text)
}

// RenderEmail formats one email notification for Telegram (MarkdownV2).
func RenderEmail(email *models.Email) string {
	var b strings.Builder

	b.WriteString("📧 *New Email*\n\n")
	fmt.Fprintf(&b, "📬 *Inbox:* %s \\(%s\\)\n", escapeMarkdown(email.AccountLabel), escapeMarkdown(email.AccountEmail))
	fmt.Fprintf(&b, "👤 *From:* %s\n", escapeMarkdown(email.Sender))
	fmt.Fprintf(&b, "📝 *Subject:* %s\n\n", escapeMarkdown(email.Subject))
	fmt.Fprintf(&b, "📄 *Preview:*\n%s", escapeMarkdown(email.Preview))

	return b.String()
}

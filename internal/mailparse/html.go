package mailparse

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText reduces an HTML body to plain text: script and style content
// is dropped, remaining text nodes are joined line by line.
func htmlToText(htmlBody string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlBody))

	var (
		lines []string
		skip  int
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(lines, "\n")

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				lines = append(lines, text)
			}
		}
	}
}

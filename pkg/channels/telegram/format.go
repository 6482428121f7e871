package telegram

import (
	"strings"

	"polymath/pkg/api"
	"polymath/pkg/chat"
)

// command maps a chat message to a message kind and its content.
func command(text string) (kind, content string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return api.KindQuestion, text
	}

	name, rest, _ := strings.Cut(trimmed, " ")
	// Commands may be addressed as /cmd@BotName in groups.
	name, _, _ = strings.Cut(name, "@")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/start", "/history":
		return api.KindHistory, ""
	case "/key":
		return api.KindCredential, rest
	case "/reset":
		return api.KindReset, ""
	case "/cancel":
		return api.KindCancel, ""
	case "/ask":
		return api.KindQuestion, rest
	default:
		return api.KindQuestion, text
	}
}

// splitMessage cuts text into pieces of at most limit runes.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

// formatHistory renders a transcript as one chat message.
func formatHistory(records []chat.Record) string {
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if r.Role == chat.RoleUser {
			sb.WriteString("👤 ")
		} else {
			sb.WriteString("🤖 ")
		}
		sb.WriteString(r.Content)
	}
	return sb.String()
}

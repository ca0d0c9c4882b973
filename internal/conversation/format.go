// Package conversation flattens chat history into model-ready transcripts.
package conversation

import (
	"strings"
	"unicode/utf8"

	"health-agent/internal/domain"
)

// Format renders messages as "role: content" lines, oldest first, keeping
// as many of the most recent lines as fit in maxChars runes. Empty messages
// are skipped. The newest non-empty line is always kept, even when it alone
// exceeds the cap. A maxChars of zero or less disables the cap.
func Format(messages []domain.ConversationMessage, maxChars int) string {
	var (
		kept  []string
		total int
	)
	for i := len(messages) - 1; i >= 0; i-- {
		content := strings.TrimSpace(messages[i].Content)
		if content == "" {
			continue
		}
		line := roleOf(messages[i]) + ": " + content + "\n"
		n := utf8.RuneCountInString(line)
		if maxChars > 0 && len(kept) > 0 && total+n > maxChars {
			break
		}
		kept = append(kept, line)
		total += n
	}

	var b strings.Builder
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

// LastUserMessage returns the trimmed content of the most recent non-empty
// user message, or "".
func LastUserMessage(messages []domain.ConversationMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if roleOf(messages[i]) != string(domain.RoleUser) {
			continue
		}
		if content := strings.TrimSpace(messages[i].Content); content != "" {
			return content
		}
	}
	return ""
}

// StripSuffix removes suffix, and the whitespace before it, from assistant
// messages. It returns a new slice and leaves messages untouched.
func StripSuffix(messages []domain.ConversationMessage, suffix string) []domain.ConversationMessage {
	suffix = strings.TrimSpace(suffix)
	out := make([]domain.ConversationMessage, len(messages))
	copy(out, messages)
	if suffix == "" {
		return out
	}
	for i, m := range out {
		if m.Role != domain.RoleAssistant {
			continue
		}
		trimmed := strings.TrimSpace(m.Content)
		if strings.HasSuffix(trimmed, suffix) {
			out[i].Content = strings.TrimSpace(strings.TrimSuffix(trimmed, suffix))
		}
	}
	return out
}

func roleOf(m domain.ConversationMessage) string {
	if m.Role == "" {
		return string(domain.RoleUser)
	}
	return string(m.Role)
}

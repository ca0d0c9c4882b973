package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"health-agent/internal/domain"
)

func user(s string) domain.ConversationMessage {
	return domain.ConversationMessage{Role: domain.RoleUser, Content: s}
}

func assistant(s string) domain.ConversationMessage {
	return domain.ConversationMessage{Role: domain.RoleAssistant, Content: s}
}

func TestFormat_Chronological(t *testing.T) {
	got := Format([]domain.ConversationMessage{user(" hi "), assistant("hello"), user("ปวดหัว")}, 0)
	require.Equal(t, "user: hi\nassistant: hello\nuser: ปวดหัว", got)
}

func TestFormat_SkipsEmptyContent(t *testing.T) {
	got := Format([]domain.ConversationMessage{user("a"), assistant("   "), user("b")}, 0)
	require.Equal(t, "user: a\nuser: b", got)
}

func TestFormat_EmptyHistory(t *testing.T) {
	require.Empty(t, Format(nil, 100))
	require.Empty(t, Format([]domain.ConversationMessage{user("")}, 100))
}

func TestFormat_KeepsMostRecentWithinBudget(t *testing.T) {
	msgs := []domain.ConversationMessage{user("oldest"), assistant("middle"), user("newest")}
	// "assistant: middle\n" is 18 runes, "user: newest\n" is 13.
	got := Format(msgs, 31)
	require.Equal(t, "assistant: middle\nuser: newest", got)

	got = Format(msgs, 30)
	require.Equal(t, "user: newest", got)
}

func TestFormat_StopsAtFirstOverflow(t *testing.T) {
	msgs := []domain.ConversationMessage{user("x"), assistant(strings.Repeat("long ", 20)), user("newest")}
	require.Equal(t, "user: newest", Format(msgs, 20))
}

func TestFormat_AlwaysKeepsNewestLine(t *testing.T) {
	long := strings.Repeat("ก", 50)
	got := Format([]domain.ConversationMessage{user("older"), user(long)}, 10)
	require.Equal(t, "user: "+long, got)
}

func TestFormat_LengthBound(t *testing.T) {
	var msgs []domain.ConversationMessage
	for i := 0; i < 40; i++ {
		msgs = append(msgs, user(strings.Repeat("สวัสดี", i%5+1)), assistant("ok"))
	}
	for _, limit := range []int{20, 64, 200, 1000} {
		got := Format(msgs, limit)
		require.LessOrEqual(t, utf8.RuneCountInString(got), limit, "limit=%d", limit)
		require.True(t, strings.HasSuffix(got, "assistant: ok"))
	}
}

func TestLastUserMessage(t *testing.T) {
	msgs := []domain.ConversationMessage{user("first"), user("  second "), assistant("reply"), user(" ")}
	require.Equal(t, "second", LastUserMessage(msgs))
	require.Empty(t, LastUserMessage([]domain.ConversationMessage{assistant("only bot")}))
	require.Empty(t, LastUserMessage(nil))
}

func TestStripSuffix(t *testing.T) {
	msgs := []domain.ConversationMessage{
		assistant("drink water\n\n-# not medical advice"),
		user("thanks -# not medical advice"),
	}
	got := StripSuffix(msgs, "-# not medical advice")
	require.Equal(t, "drink water", got[0].Content)
	require.Equal(t, "thanks -# not medical advice", got[1].Content)
	require.Equal(t, "drink water\n\n-# not medical advice", msgs[0].Content)
}

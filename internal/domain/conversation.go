package domain

// Role tags the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is a single chat turn supplied by the caller. The
// ordering of a slice of these is chronological.
type ConversationMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Topic is the intent assigned to the latest user message.
type Topic string

const (
	TopicUnset     Topic = ""
	TopicAsk       Topic = "ask"
	TopicUpdate    Topic = "update"
	TopicUpdateAsk Topic = "update_ask"
)

// ParseTopic accepts the empty string as unset and rejects unknown values.
func ParseTopic(s string) (Topic, bool) {
	switch t := Topic(s); t {
	case TopicUnset, TopicAsk, TopicUpdate, TopicUpdateAsk:
		return t, true
	default:
		return TopicUnset, false
	}
}

// NeedsProfile reports whether the topic routes through profile extraction.
func (t Topic) NeedsProfile() bool {
	return t == TopicUpdate || t == TopicUpdateAsk
}

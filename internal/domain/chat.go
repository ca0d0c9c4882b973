package domain

import "encoding/json"

// ChatMessage is the provider-agnostic chat message shape sent to the
// language model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseSchema names a strict JSON schema the model output must satisfy.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

// Package provider abstracts the chat-completion backends the processor
// talks to. Providers are OpenAI-compatible HTTP services registered by
// name; model IDs are "provider/model".
package provider

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries one completion call. ResponseJSON asks the backend
// for an explicit JSON-object response mode where supported.
type ChatRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
	ResponseJSON bool      `json:"-"`
}

type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
}

type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ParseModelID splits a "provider/model" ID.
func ParseModelID(modelID string) (providerName, modelName string, err error) {
	parts := strings.SplitN(modelID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model ID %q: expected format 'provider/model'", modelID)
	}
	return parts[0], parts[1], nil
}

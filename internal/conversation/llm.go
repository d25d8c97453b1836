package conversation

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// ErrDisabled is returned when no LLM credentials are configured.
var ErrDisabled = errors.New("conversation llm is not configured")

// ChatClient produces one assistant completion for a dialog history.
type ChatClient interface {
	Chat(ctx context.Context, messages []protocol.ConversationMessage) (string, error)
}

// NewChatClient builds a client for cfg. With no API key present it
// returns a client that always fails with ErrDisabled, so callers fall
// back to the canned response path.
func NewChatClient(cfg config.LLMConfig) ChatClient {
	if cfg.APIKey == "" {
		return disabledClient{}
	}
	return &openAIClient{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}
}

type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func (c *openAIClient) Chat(ctx context.Context, messages []protocol.ConversationMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type disabledClient struct{}

func (disabledClient) Chat(context.Context, []protocol.ConversationMessage) (string, error) {
	return "", ErrDisabled
}

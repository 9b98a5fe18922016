package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// anthropicMaxTokens bounds completion length for worker and planner
// prompts; plans and task outputs fit comfortably under it.
const anthropicMaxTokens = 4096

// NewAnthropic builds a resilient provider over the Anthropic messages API.
func NewAnthropic(model, apiKey string, opts Options, logger *zap.Logger) *Client {
	api := anthropic.NewClient(option.WithAPIKey(apiKey))

	invoke := func(ctx context.Context, prompt string) (string, error) {
		msg, err := api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: anthropicMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("anthropic: response contained no text blocks")
		}
		return b.String(), nil
	}

	return NewClient("anthropic", model, invoke, classifyAnthropic, opts, logger)
}

func classifyAnthropic(err error) Kind {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if kind, ok := classifyStatus(apierr.StatusCode); ok {
			return kind
		}
	}
	// Anthropic reports overload as a 529 message in some paths.
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "overloaded") {
		return KindUnavailable
	}
	return ClassifyMessage(err)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// NewOpenAI builds a resilient provider over the OpenAI chat completions
// API. The API key is passed explicitly; no environment is read here.
func NewOpenAI(model, apiKey string, opts Options, logger *zap.Logger) *Client {
	api := openai.NewClient(option.WithAPIKey(apiKey))

	invoke := func(ctx context.Context, prompt string) (string, error) {
		resp, err := api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			return "", decorateOpenAI(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai: response contained no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}

	return NewClient("openai", model, invoke, classifyOpenAI, opts, logger)
}

// decorateOpenAI attaches structured kind and backoff information from the
// API error so the retry loop and callers don't re-parse messages.
func decorateOpenAI(err error) error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return err
	}
	kind, ok := classifyStatus(apierr.StatusCode)
	if !ok {
		return err
	}
	pe := &ProviderError{Kind: kind, Provider: "openai", Hint: kind.Hint(), Err: err}
	if kind == KindRateLimit && apierr.Response != nil {
		if secs, perr := strconv.Atoi(apierr.Response.Header.Get("Retry-After")); perr == nil && secs > 0 {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return pe
}

func classifyOpenAI(err error) Kind {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if kind, ok := classifyStatus(apierr.StatusCode); ok {
			return kind
		}
	}
	return ClassifyMessage(err)
}

package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// HuggingFaceConfig holds connection settings for the HuggingFace inference router
type HuggingFaceConfig struct {
	Token   string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// HuggingFace implements the Provider interface using the OpenAI-compatible HuggingFace router
type HuggingFace struct {
	client openai.Client
	model  string
}

// NewHuggingFace creates a new HuggingFace provider
func NewHuggingFace(cfg HuggingFaceConfig) (*HuggingFace, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: HF_TOKEN environment variable not set", ErrConfigurationMissing)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://router.huggingface.co/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "Qwen/Qwen2.5-VL-7B-Instruct:hyperbolic"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.Token),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		// Retry policy belongs to the caller
		option.WithMaxRetries(0),
	)

	return &HuggingFace{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Name returns the provider name
func (h *HuggingFace) Name() string {
	return "huggingface"
}

// Vision reports image support
func (h *HuggingFace) Vision() bool {
	return true
}

// Invoke sends one user message with a text part and an image part and returns the first choice's content
func (h *HuggingFace) Invoke(ctx context.Context, img Image, prompt string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: h.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{
								OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt},
							},
							{
								OfImageURL: &openai.ChatCompletionContentPartImageParam{
									ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
										URL: img.DataURL(),
									},
								},
							},
						},
					},
				},
			},
		},
	}

	resp, err := h.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: huggingface chat completion failed: %w", ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in huggingface response", ErrUpstreamProtocol)
	}
	msg := resp.Choices[0].Message
	if !msg.JSON.Content.Valid() {
		return "", fmt.Errorf("%w: huggingface response has no message content", ErrUpstreamProtocol)
	}

	return msg.Content, nil
}

// Close is a no-op, the SDK client holds no resources
func (h *HuggingFace) Close() error {
	return nil
}

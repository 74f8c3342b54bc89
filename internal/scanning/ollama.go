package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig holds connection settings for a self-hosted Ollama server
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	NumPredict  int
}

// Ollama implements the Provider interface using Ollama's chat API
type Ollama struct {
	cfg    OllamaConfig
	client *http.Client
}

// NewOllama creates a new Ollama provider.
// Vision models that work reasonably on handwriting:
//   - bakllava (default)
//   - llava:1.6
//   - qwen2.5vl:7b
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: ollama host is required", ErrConfigurationMissing)
	}
	if cfg.Model == "" {
		cfg.Model = "bakllava:latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second // Vision models on CPU are slow
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Ollama{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message *ollamaMessage `json:"message"`
	Done    bool           `json:"done"`
}

// Name returns the provider name
func (o *Ollama) Name() string {
	return "ollama"
}

// Vision reports image support
func (o *Ollama) Vision() bool {
	return true
}

// Invoke sends the image to Ollama and returns the assistant's reply
func (o *Ollama) Invoke(ctx context.Context, img Image, prompt string) (string, error) {
	reqBody := ollamaChatRequest{
		Model:  o.cfg.Model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: ollamaSystemPrompt,
			},
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{img.Base64()},
			},
		},
		Options: ollamaOptions{
			Temperature: o.cfg.Temperature,
			NumPredict:  o.cfg.NumPredict,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling ollama API: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama API error (status %d): %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: reading ollama response: %w", ErrTransport, err)
		}
		return "", fmt.Errorf("%w: decoding ollama response: %w", ErrUpstreamProtocol, err)
	}

	if chatResp.Message == nil {
		return "", fmt.Errorf("%w: ollama response has no message", ErrUpstreamProtocol)
	}

	return chatResp.Message.Content, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}

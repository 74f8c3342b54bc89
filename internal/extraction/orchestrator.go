package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/handwriting-extractor/internal/scanning"
)

var displayNames = map[string]string{
	"huggingface": "HuggingFace",
	"gemini":      "Gemini",
	"ollama":      "Ollama",
	"groq":        "Groq API",
}

func displayName(p scanning.Provider) string {
	if name, ok := displayNames[p.Name()]; ok {
		return name
	}
	return p.Name()
}

// ProviderInfo describes a configured provider
type ProviderInfo struct {
	Name   string `json:"name"`
	Vision bool   `json:"vision"`
}

// Orchestrator picks the provider for a request and runs it.
// Providers are kept in priority order and never change after construction.
type Orchestrator struct {
	vision    []scanning.Provider
	text      []scanning.Provider
	consensus bool
}

// NewOrchestrator creates an Orchestrator. providers must be in priority order; nil entries are skipped.
func NewOrchestrator(providers []scanning.Provider, consensus bool) *Orchestrator {
	o := &Orchestrator{consensus: consensus}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if p.Vision() {
			o.vision = append(o.vision, p)
		} else {
			o.text = append(o.text, p)
		}
	}
	return o
}

// Providers lists the configured providers, vision-capable ones first
func (o *Orchestrator) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(o.vision)+len(o.text))
	for _, p := range o.vision {
		infos = append(infos, ProviderInfo{Name: p.Name(), Vision: true})
	}
	for _, p := range o.text {
		infos = append(infos, ProviderInfo{Name: p.Name(), Vision: false})
	}
	return infos
}

// Extract selects a provider by fixed priority and runs the extraction:
// the first vision provider if any, else the first text-only provider, else a
// configuration failure naming what is missing.
func (o *Orchestrator) Extract(ctx context.Context, img scanning.Image, filename string) Result {
	if len(o.vision) > 0 {
		if o.consensus && len(o.vision) > 1 {
			return o.extractConsensus(ctx, o.vision[0], o.vision[1], img, filename)
		}
		return o.extractVision(ctx, o.vision[0], img, filename)
	}

	if len(o.text) > 0 {
		return o.ExtractWith(ctx, o.text[0], img, filename)
	}

	err := fmt.Errorf("%w: no vision provider configured, set HF_TOKEN (or GEMINI_API_KEY / OLLAMA_HOST)", scanning.ErrConfigurationMissing)
	return failed(filename, err, "HF_TOKEN environment variable not set")
}

// ExtractWith runs the extraction on a specific provider. A provider without
// image support is redirected to the first vision provider when one exists.
func (o *Orchestrator) ExtractWith(ctx context.Context, p scanning.Provider, img scanning.Image, filename string) Result {
	if p.Vision() {
		return o.extractVision(ctx, p, img, filename)
	}

	if len(o.vision) > 0 {
		slog.Info("Provider doesn't support vision, falling back", "provider", p.Name(), "fallback", o.vision[0].Name())
		return o.extractVision(ctx, o.vision[0], img, filename)
	}

	_, err := p.Invoke(ctx, img, scanning.ExtractionPrompt)
	if !errors.Is(err, scanning.ErrProtocolMismatch) {
		err = fmt.Errorf("%w: %s models don't support vision/image inputs", scanning.ErrProtocolMismatch, displayName(p))
	}
	result := failed(filename, err, "Please configure HF_TOKEN for HuggingFace vision model (Qwen2.5-VL-7B-Instruct) to process images")
	result.Provider = p.Name()
	return result
}

func (o *Orchestrator) extractVision(ctx context.Context, p scanning.Provider, img scanning.Image, filename string) Result {
	data, err := o.invoke(ctx, p, img)
	if err != nil {
		slog.Error("Extraction failed", "provider", p.Name(), "filename", filename, "error", err)
		result := failedf(filename, err, "Failed to extract handwriting using %s", displayName(p))
		result.Provider = p.Name()
		return result
	}

	result := succeeded(filename, data, fmt.Sprintf("Handwriting extracted successfully using %s", displayName(p)))
	result.Provider = p.Name()
	return result
}

// extractConsensus reads the image with two providers and reconciles the results.
// If one side fails the other is used; if both fail the primary's failure is returned.
func (o *Orchestrator) extractConsensus(ctx context.Context, primary, secondary scanning.Provider, img scanning.Image, filename string) Result {
	a, errA := o.invoke(ctx, primary, img)
	b, errB := o.invoke(ctx, secondary, img)

	switch {
	case errA != nil && errB != nil:
		slog.Error("Consensus extraction failed", "primary", primary.Name(), "secondary", secondary.Name(), "error", errA, "secondary_error", errB)
		result := failedf(filename, errA, "Failed to extract handwriting using %s and %s", displayName(primary), displayName(secondary))
		result.Provider = primary.Name()
		return result
	case errA != nil:
		slog.Warn("Primary provider failed, using secondary result", "provider", primary.Name(), "error", errA)
		result := succeeded(filename, b, fmt.Sprintf("Handwriting extracted successfully using %s", displayName(secondary)))
		result.Provider = secondary.Name()
		return result
	case errB != nil:
		slog.Warn("Secondary provider failed, using primary result", "provider", secondary.Name(), "error", errB)
		result := succeeded(filename, a, fmt.Sprintf("Handwriting extracted successfully using %s", displayName(primary)))
		result.Provider = primary.Name()
		return result
	}

	merged := a
	ma, aIsMap := a.(map[string]any)
	mb, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		merged = Merge(ma, mb)
	}

	result := succeeded(filename, merged, fmt.Sprintf("Handwriting extracted successfully using %s and %s (consensus)", displayName(primary), displayName(secondary)))
	result.Provider = primary.Name() + "+" + secondary.Name()
	return result
}

func (o *Orchestrator) invoke(ctx context.Context, p scanning.Provider, img scanning.Image) (any, error) {
	raw, err := p.Invoke(ctx, img, scanning.ExtractionPrompt)
	if err != nil {
		return nil, err
	}
	return scanning.Normalize(raw), nil
}

// Close closes every provider
func (o *Orchestrator) Close() error {
	var errs []error
	for _, p := range append(append([]scanning.Provider{}, o.vision...), o.text...) {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

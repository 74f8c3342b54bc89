package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zombor/handwriting-extractor/internal/scanning"
)

// Agent is the composition root: it owns the providers, the image encoder and
// the optional tracer, and exposes a single extraction operation.
type Agent struct {
	orchestrator *Orchestrator
	encoder      *scanning.Encoder
	tracer       Tracer
	traces       *TraceStore
}

// NewAgent builds an Agent from configuration. Unavailable optional
// integrations are logged and left out; construction never fails.
func NewAgent(cfg Config) *Agent {
	var providers []scanning.Provider

	if hf, err := scanning.NewHuggingFace(scanning.HuggingFaceConfig{
		Token:   cfg.HFToken,
		BaseURL: cfg.HFBaseURL,
		Model:   cfg.HFModel,
		Timeout: cfg.RequestTimeout,
	}); err != nil {
		slog.Warn("HuggingFace token not configured", "error", err)
	} else {
		slog.Info("HuggingFace API configured", "model", cfg.HFModel)
		providers = append(providers, hf)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := scanning.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("Failed to initialize Gemini", "error", err)
		} else {
			slog.Info("Gemini configured", "model", cfg.GeminiModel)
			providers = append(providers, gemini)
		}
	}

	if cfg.OllamaHost != "" {
		ollama, err := scanning.NewOllama(scanning.OllamaConfig{
			BaseURL:     cfg.OllamaHost,
			Model:       cfg.OllamaModel,
			Timeout:     cfg.OllamaTimeout,
			Temperature: cfg.OllamaTemperature,
			NumPredict:  cfg.OllamaNumPredict,
		})
		if err != nil {
			slog.Warn("Failed to initialize Ollama", "error", err)
		} else {
			slog.Info("Ollama configured", "host", cfg.OllamaHost, "model", cfg.OllamaModel)
			providers = append(providers, ollama)
		}
	}

	if groq, err := scanning.NewGroq(cfg.GroqAPIKey, cfg.GroqModel); err != nil {
		slog.Warn("Groq API key not configured", "error", err)
	} else {
		slog.Info("Groq API configured (text-only)")
		providers = append(providers, groq)
	}

	a := &Agent{
		orchestrator: NewOrchestrator(providers, cfg.UseConsensus),
		encoder:      scanning.NewEncoder(cfg.EnablePreprocessing),
	}

	if cfg.TraceDBPath != "" {
		store, err := NewTraceStore(cfg.TraceDBPath)
		if err != nil {
			slog.Warn("Trace store initialization failed, continuing without tracing", "path", cfg.TraceDBPath, "error", err)
		} else {
			slog.Info("Trace store initialized", "path", cfg.TraceDBPath)
			a.tracer = store
			a.traces = store
		}
	} else {
		slog.Warn("Trace store not configured, continuing without tracing")
	}

	return a
}

// NewAgentWithDeps creates an Agent with explicit dependencies for testing.
// tracer may be nil.
func NewAgentWithDeps(orchestrator *Orchestrator, encoder *scanning.Encoder, tracer Tracer) *Agent {
	a := &Agent{
		orchestrator: orchestrator,
		encoder:      encoder,
		tracer:       tracer,
	}
	if store, ok := tracer.(*TraceStore); ok {
		a.traces = store
	}
	return a
}

// ExtractHandwriting reads the image at imagePath and extracts its contents.
// Every failure is reported through the returned Result.
func (a *Agent) ExtractHandwriting(ctx context.Context, imagePath, filename string) Result {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		result := failedf(filename, fmt.Errorf("reading image: %w", err), "Failed to read uploaded image")
		a.trace(ctx, filename, result, 0)
		return result
	}
	return a.ExtractHandwritingBytes(ctx, data, filename)
}

// ExtractHandwritingBytes extracts the contents of an in-memory image
func (a *Agent) ExtractHandwritingBytes(ctx context.Context, data []byte, filename string) Result {
	start := time.Now()

	img := a.encoder.Encode(data)
	result := a.orchestrator.Extract(ctx, img, filename)

	a.trace(ctx, filename, result, time.Since(start))
	return result
}

// trace records the attempt; tracer failures are logged and swallowed
func (a *Agent) trace(ctx context.Context, filename string, result Result, elapsed time.Duration) {
	if a.tracer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Trace failed", "filename", filename, "error", r)
		}
	}()

	name := "handwriting_extraction"
	if result.Provider != "" {
		name += "_" + result.Provider
	}
	if !result.Success {
		name += "_error"
	}

	err := a.tracer.Record(ctx, Trace{
		Name:       name,
		Filename:   filename,
		Provider:   result.Provider,
		Result:     result,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		slog.Warn("Trace failed", "filename", filename, "error", err)
	}
}

// Providers lists configured providers
func (a *Agent) Providers() []ProviderInfo {
	return a.orchestrator.Providers()
}

// PreprocessingEnabled reports whether images are enhanced before upload
func (a *Agent) PreprocessingEnabled() bool {
	return a.encoder.Enabled()
}

// TracingEnabled reports whether a tracer is attached
func (a *Agent) TracingEnabled() bool {
	return a.tracer != nil
}

// Traces returns the bolt trace store, or nil when traces are not persisted
func (a *Agent) Traces() *TraceStore {
	return a.traces
}

// Close releases providers and the trace store
func (a *Agent) Close() error {
	errs := []error{a.orchestrator.Close()}
	if a.traces != nil {
		errs = append(errs, a.traces.Close())
	}
	return errors.Join(errs...)
}

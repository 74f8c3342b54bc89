package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/handwriting-extractor/internal/extraction"
	"github.com/zombor/handwriting-extractor/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	opts, fs, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if opts.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	agent := extraction.NewAgent(opts.agent)
	defer agent.Close()
	slog.Info("Handwriting extraction agent initialized", "providers", agent.Providers())

	slog.Info("Initializing storage...", "path", opts.uploadDir)
	store, err := server.NewLocalStorage(opts.uploadDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(agent, store, version)

	addr := fmt.Sprintf(":%d", opts.port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

type options struct {
	port        int
	uploadDir   string
	showVersion bool
	agent       extraction.Config
}

// parseOptions reads flags, then environment variables (--hf-token is HF_TOKEN),
// then the optional config file
func parseOptions(args []string) (options, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("handwriting-extractor")
	var (
		port       = fs.IntLong("port", 8000, "HTTP server port")
		uploadDir  = fs.StringLong("upload-dir", "uploads", "Scratch directory for uploaded images")
		traceDB    = fs.StringLong("trace-db", "", "Trace database file path (empty disables tracing)")
		hfToken    = fs.StringLong("hf-token", "", "HuggingFace router token")
		hfBaseURL  = fs.StringLong("hf-base-url", "https://router.huggingface.co/v1", "HuggingFace OpenAI-compatible base URL")
		hfModel    = fs.StringLong("hf-model", "Qwen/Qwen2.5-VL-7B-Instruct:hyperbolic", "HuggingFace vision model")
		groqKey    = fs.StringLong("groq-api-key", "", "Groq API key (text-only models)")
		groqModel  = fs.StringLong("groq-model", "qwen-2.5-32b", "Groq model name")
		geminiKey  = fs.StringLong("gemini-api-key", "", "Google Gemini API key")
		geminiMod  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaHost = fs.StringLong("ollama-host", "", "Ollama API base URL (empty disables Ollama)")
		ollamaMod  = fs.StringLong("ollama-model", "bakllava:latest", "Ollama vision model name")
		ollamaTO   = fs.Float64Long("ollama-timeout-seconds", 120, "Ollama request timeout in seconds")
		ollamaTemp = fs.Float64Long("ollama-temperature", 0.1, "Ollama sampling temperature")
		ollamaNP   = fs.IntLong("ollama-num-predict", 2048, "Ollama maximum tokens to generate")
		reqTO      = fs.DurationLong("request-timeout", 120*time.Second, "Hosted provider request timeout")
		preprocess = fs.BoolDefault(0, "enable-image-preprocessing", true, "Enhance images before sending them to the model")
		consensus  = fs.BoolDefault(0, "use-consensus-mode", true, "Read each image with two vision providers and merge the results")
		_          = fs.StringLong("config", "", "Config file (optional)")
		showVer    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVars(),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		return options{}, fs, err
	}

	return options{
		port:        *port,
		uploadDir:   *uploadDir,
		showVersion: *showVer,
		agent: extraction.Config{
			HFToken:             *hfToken,
			HFBaseURL:           *hfBaseURL,
			HFModel:             *hfModel,
			GroqAPIKey:          *groqKey,
			GroqModel:           *groqModel,
			GeminiAPIKey:        *geminiKey,
			GeminiModel:         *geminiMod,
			OllamaHost:          *ollamaHost,
			OllamaModel:         *ollamaMod,
			OllamaTimeout:       time.Duration(*ollamaTO * float64(time.Second)),
			OllamaTemperature:   *ollamaTemp,
			OllamaNumPredict:    *ollamaNP,
			RequestTimeout:      *reqTO,
			EnablePreprocessing: *preprocess,
			UseConsensus:        *consensus,
			TraceDBPath:         *traceDB,
		},
	}, fs, nil
}

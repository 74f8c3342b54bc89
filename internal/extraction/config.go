package extraction

import "time"

// Config holds provider configuration. It is read once by NewAgent and never mutated.
type Config struct {
	HFToken   string
	HFBaseURL string
	HFModel   string

	GroqAPIKey string
	GroqModel  string

	GeminiAPIKey string
	GeminiModel  string

	OllamaHost        string
	OllamaModel       string
	OllamaTimeout     time.Duration
	OllamaTemperature float64
	OllamaNumPredict  int

	RequestTimeout time.Duration

	EnablePreprocessing bool
	UseConsensus        bool

	// TraceDBPath enables the bolt trace store when set
	TraceDBPath string
}

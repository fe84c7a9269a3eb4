package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AIConfig struct {
	DefaultBaseURL string `env:"AI_DEFAULT_BASE_URL" envDefault:"https://api.openai.com/v1"`
	DefaultAPIKey  string `env:"AI_DEFAULT_API_KEY"`

	// FallbackModels are tried in order when the participant's own model
	// fails or is cooling down.
	FallbackModels []string `env:"AI_FALLBACK_MODELS" envSeparator:"," envDefault:"gpt-4o-mini,deepseek-chat"`

	RequestTimeout time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"AI_MAX_RETRIES" envDefault:"3"`

	// FailureThreshold consecutive failures put a model on cooldown until
	// its next success elsewhere.
	FailureThreshold int `env:"AI_FAILURE_THRESHOLD" envDefault:"5"`

	SpeechDelay   time.Duration `env:"AI_SPEECH_DELAY" envDefault:"1s"`
	VoteDelay     time.Duration `env:"AI_VOTE_DELAY" envDefault:"500ms"`
	MaxIterations int           `env:"AI_MAX_ITERATIONS" envDefault:"20"`
}

func LoadAI() (AIConfig, error) {
	var cfg AIConfig
	err := env.Parse(&cfg)
	return cfg, err
}

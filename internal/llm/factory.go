package llm

import (
	"fmt"
	"net/http"
	"time"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string // gemini, openrouter, offline
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration

	// HTTPClient is optional; tests point it at an httptest server.
	HTTPClient *http.Client
}

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 120 * time.Second
	}
	return c.Timeout
}

// New creates the Model named by cfg.Provider.
func New(cfg ProviderConfig) (Model, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg)
	case "openrouter":
		return NewOpenRouter(cfg)
	case "offline", "":
		return NewOffline(), nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: gemini, openrouter, offline)", ErrUnknownProvider, cfg.Provider)
	}
}

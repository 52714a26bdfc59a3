package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Provider         string
	OpenAI           OpenAIConfig
	YandexOAuthToken string
	YandexFolderID   string
}

// NewClient builds the client for the configured provider. An empty
// provider means OpenAI.
func NewClient(cfg ProviderConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI), nil
	case ProviderYandex:
		return NewYandex(cfg.YandexOAuthToken, cfg.YandexFolderID), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/envutil"
)

// Defaults applied when the config omits a value
const (
	DefaultStateTTL        = 5 * time.Minute
	DefaultReplayTTL       = 10 * time.Minute
	DefaultExchangeTimeout = 8 * time.Second
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v0.1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into typed Config struct; the custom UnmarshalJSON
	// methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects secrets pasted as literals before any env
// resolution happens. Development mode allows literals so a local config
// works without exporting anything.
func validateRawConfig(rawConfig map[string]any) error {
	broker, ok := rawConfig["broker"].(map[string]any)
	if !ok {
		return fmt.Errorf("broker section is required")
	}

	if envutil.IsDev() {
		return nil
	}

	secretFields := []struct {
		container map[string]any
		name      string
	}{
		{broker, "masterSecret"},
	}
	if provider, ok := broker["provider"].(map[string]any); ok {
		secretFields = append(secretFields, struct {
			container map[string]any
			name      string
		}{provider, "clientSecret"})
	}

	for _, field := range secretFields {
		value, exists := field.container[field.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", field.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", field.name)
			}
		}
	}
	return nil
}

func applyDefaults(config *Config) {
	broker := &config.Broker
	if broker.StateTTL == 0 {
		broker.StateTTL = DefaultStateTTL
	}
	if broker.ReplayTTL == 0 {
		broker.ReplayTTL = DefaultReplayTTL
	}
	if broker.ExchangeTimeout == 0 {
		broker.ExchangeTimeout = DefaultExchangeTimeout
	}
	if broker.Storage == "" {
		broker.Storage = StorageKindMemory
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	broker := &config.Broker

	if broker.Addr == "" {
		return fmt.Errorf("broker.addr is required")
	}
	if broker.AllowedOrigin == "" {
		return fmt.Errorf("broker.allowedOrigin is required")
	}
	if strings.Contains(broker.AllowedOrigin, "*") {
		return fmt.Errorf("broker.allowedOrigin cannot contain a wildcard")
	}
	if len(broker.MasterSecret) < 32 {
		return fmt.Errorf("masterSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(broker.MasterSecret))
	}
	if broker.ReplayTTL < broker.StateTTL {
		return fmt.Errorf("replayTtl (%s) must be at least stateTtl (%s)", broker.ReplayTTL, broker.StateTTL)
	}

	if err := validateProvider(&broker.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	switch broker.Storage {
	case StorageKindMemory:
	case StorageKindFirestore:
		if broker.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", broker.Storage)
	}

	return nil
}

func validateProvider(provider *ProviderConfig) error {
	if provider.AuthorizationURL == "" {
		return fmt.Errorf("authorizationUrl is required")
	}
	if provider.TokenURL == "" {
		return fmt.Errorf("tokenUrl is required")
	}
	if provider.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if provider.ClientSecret == "" && !provider.PKCE {
		return fmt.Errorf("clientSecret is required for confidential clients (or enable pkce)")
	}
	if provider.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	return nil
}

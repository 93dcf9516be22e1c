package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterSecret = "master-secret-of-at-least-32-characters"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func validConfigJSON() string {
	return `{
		"version": "v0.1.0",
		"broker": {
			"addr": ":8080",
			"baseURL": "https://broker.example.com",
			"allowedOrigin": "https://app.example.com",
			"masterSecret": {"$env": "BROKER_MASTER_SECRET"},
			"provider": {
				"authorizationUrl": "https://provider.example.com/authorize",
				"tokenUrl": "https://provider.example.com/token",
				"clientId": {"$env": "BROKER_CLIENT_ID"},
				"clientSecret": {"$env": "BROKER_CLIENT_SECRET"},
				"redirectUri": "https://app.example.com/callback",
				"scopes": ["com.intuit.quickbooks.accounting"]
			}
		}
	}`
}

func setProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BROKER_MASTER_SECRET", testMasterSecret)
	t.Setenv("BROKER_CLIENT_ID", "client-id")
	t.Setenv("BROKER_CLIENT_SECRET", "client-secret")
}

func TestLoadValidConfig(t *testing.T) {
	setProviderEnv(t)
	path := writeConfig(t, validConfigJSON())

	config, err := Load(path)
	require.NoError(t, err)

	broker := config.Broker
	assert.Equal(t, ":8080", broker.Addr)
	assert.Equal(t, "https://app.example.com", broker.AllowedOrigin)
	assert.Equal(t, testMasterSecret, string(broker.MasterSecret))
	assert.Equal(t, "client-id", broker.Provider.ClientID)
	assert.Equal(t, "client-secret", string(broker.Provider.ClientSecret))
	assert.Equal(t, []string{"com.intuit.quickbooks.accounting"}, broker.Provider.Scopes)

	// Defaults
	assert.Equal(t, DefaultStateTTL, broker.StateTTL)
	assert.Equal(t, DefaultReplayTTL, broker.ReplayTTL)
	assert.Equal(t, DefaultExchangeTimeout, broker.ExchangeTimeout)
	assert.Equal(t, StorageKindMemory, broker.Storage)
}

func TestLoadParsesDurations(t *testing.T) {
	setProviderEnv(t)
	path := writeConfig(t, `{
		"version": "v0.1.0",
		"broker": {
			"addr": ":8080",
			"allowedOrigin": "https://app.example.com",
			"masterSecret": {"$env": "BROKER_MASTER_SECRET"},
			"stateTtl": "2m",
			"replayTtl": "15m",
			"exchangeTimeout": "3s",
			"provider": {
				"authorizationUrl": "https://provider.example.com/authorize",
				"tokenUrl": "https://provider.example.com/token",
				"clientId": {"$env": "BROKER_CLIENT_ID"},
				"clientSecret": {"$env": "BROKER_CLIENT_SECRET"},
				"redirectUri": "https://app.example.com/callback"
			}
		}
	}`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, config.Broker.StateTTL)
	assert.Equal(t, 15*time.Minute, config.Broker.ReplayTTL)
	assert.Equal(t, 3*time.Second, config.Broker.ExchangeTimeout)
}

func TestLoadRejectsLiteralSecrets(t *testing.T) {
	setProviderEnv(t)

	t.Run("literal master secret", func(t *testing.T) {
		path := writeConfig(t, `{
			"version": "v0.1.0",
			"broker": {
				"addr": ":8080",
				"allowedOrigin": "https://app.example.com",
				"masterSecret": "hardcoded-secret-that-is-long-enough",
				"provider": {
					"authorizationUrl": "https://provider.example.com/authorize",
					"tokenUrl": "https://provider.example.com/token",
					"clientId": "id",
					"clientSecret": {"$env": "BROKER_CLIENT_SECRET"},
					"redirectUri": "https://app.example.com/callback"
				}
			}
		}`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "masterSecret must use environment variable reference")
	})

	t.Run("literal client secret", func(t *testing.T) {
		path := writeConfig(t, `{
			"version": "v0.1.0",
			"broker": {
				"addr": ":8080",
				"allowedOrigin": "https://app.example.com",
				"masterSecret": {"$env": "BROKER_MASTER_SECRET"},
				"provider": {
					"authorizationUrl": "https://provider.example.com/authorize",
					"tokenUrl": "https://provider.example.com/token",
					"clientId": "id",
					"clientSecret": "hardcoded",
					"redirectUri": "https://app.example.com/callback"
				}
			}
		}`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clientSecret must use environment variable reference")
	})
}

func TestLoadAllowsLiteralSecretsInDev(t *testing.T) {
	t.Setenv("OAUTH_BROKER_ENV", "development")

	path := writeConfig(t, `{
		"version": "v0.1.0",
		"broker": {
			"addr": ":8080",
			"allowedOrigin": "https://app.example.com",
			"masterSecret": "local-dev-secret-of-at-least-32-chars",
			"provider": {
				"authorizationUrl": "https://provider.example.com/authorize",
				"tokenUrl": "https://provider.example.com/token",
				"clientId": "id",
				"clientSecret": "local-secret",
				"redirectUri": "https://app.example.com/callback"
			}
		}
	}`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local-dev-secret-of-at-least-32-chars", string(config.Broker.MasterSecret))
}

func TestLoadMissingEnvVar(t *testing.T) {
	t.Setenv("BROKER_CLIENT_ID", "client-id")
	t.Setenv("BROKER_CLIENT_SECRET", "client-secret")
	// BROKER_MASTER_SECRET deliberately unset
	t.Setenv("BROKER_MASTER_SECRET", "")

	path := writeConfig(t, validConfigJSON())
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKER_MASTER_SECRET not set")
}

func TestLoadVersionRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing version", `{"broker": {}}`, "config version is required"},
		{"unsupported version", `{"version": "v2.0", "broker": {}}`, "unsupported config version"},
		{"invalid json", `{not json`, "parsing config JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			Version: "v0.1.0",
			Broker: BrokerConfig{
				Addr:          ":8080",
				AllowedOrigin: "https://app.example.com",
				MasterSecret:  Secret(testMasterSecret),
				StateTTL:      DefaultStateTTL,
				ReplayTTL:     DefaultReplayTTL,
				Storage:       StorageKindMemory,
				Provider: ProviderConfig{
					AuthorizationURL: "https://provider.example.com/authorize",
					TokenURL:         "https://provider.example.com/token",
					ClientID:         "id",
					ClientSecret:     "secret",
					RedirectURI:      "https://app.example.com/callback",
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing addr", func(c *Config) { c.Broker.Addr = "" }, "broker.addr is required"},
		{"missing origin", func(c *Config) { c.Broker.AllowedOrigin = "" }, "broker.allowedOrigin is required"},
		{"wildcard origin", func(c *Config) { c.Broker.AllowedOrigin = "*" }, "cannot contain a wildcard"},
		{"wildcard subdomain", func(c *Config) { c.Broker.AllowedOrigin = "https://*.example.com" }, "cannot contain a wildcard"},
		{"short master secret", func(c *Config) { c.Broker.MasterSecret = "too-short" }, "at least 32 characters"},
		{"replay ttl below state ttl", func(c *Config) { c.Broker.ReplayTTL = time.Minute }, "must be at least stateTtl"},
		{"missing token url", func(c *Config) { c.Broker.Provider.TokenURL = "" }, "tokenUrl is required"},
		{"missing client id", func(c *Config) { c.Broker.Provider.ClientID = "" }, "clientId is required"},
		{"missing redirect uri", func(c *Config) { c.Broker.Provider.RedirectURI = "" }, "redirectUri is required"},
		{"no secret no pkce", func(c *Config) { c.Broker.Provider.ClientSecret = "" }, "clientSecret is required"},
		{"firestore without project", func(c *Config) { c.Broker.Storage = StorageKindFirestore }, "gcpProject is required"},
		{"unknown storage", func(c *Config) { c.Broker.Storage = "redis" }, "unknown storage kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			tt.mutate(config)

			err := ValidateConfig(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfigPKCEPublicClient(t *testing.T) {
	config := &Config{
		Version: "v0.1.0",
		Broker: BrokerConfig{
			Addr:          ":8080",
			AllowedOrigin: "https://app.example.com",
			MasterSecret:  Secret(testMasterSecret),
			StateTTL:      DefaultStateTTL,
			ReplayTTL:     DefaultReplayTTL,
			Storage:       StorageKindMemory,
			Provider: ProviderConfig{
				AuthorizationURL: "https://provider.example.com/authorize",
				TokenURL:         "https://provider.example.com/token",
				ClientID:         "id",
				RedirectURI:      "https://app.example.com/callback",
				PKCE:             true,
			},
		},
	}
	assert.NoError(t, ValidateConfig(config))
}

func TestParseConfigValue(t *testing.T) {
	t.Setenv("TEST_PLAIN", "plain-value")
	t.Setenv("TEST_DOUBLE_QUOTED", `"quoted"`)
	t.Setenv("TEST_SINGLE_QUOTED", `'quoted'`)

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain string", `"literal"`, "literal", false},
		{"env reference", `{"$env": "TEST_PLAIN"}`, "plain-value", false},
		{"strips double quotes", `{"$env": "TEST_DOUBLE_QUOTED"}`, "quoted", false},
		{"strips single quotes", `{"$env": "TEST_SINGLE_QUOTED"}`, "quoted", false},
		{"unset env var", `{"$env": "TEST_UNSET_VAR"}`, "", true},
		{"unknown reference", `{"$vault": "path"}`, "", true},
		{"not a string or object", `42`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigValue(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	secret := Secret("super-secret")
	assert.Equal(t, "***", secret.String())
	assert.Equal(t, "***", fmt.Sprintf("%s", secret))
	assert.Equal(t, "***", fmt.Sprintf("%v", secret))

	data, err := json.Marshal(struct {
		Token Secret `json:"token"`
	}{Token: secret})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), "***")

	assert.Equal(t, "", Secret("").String())
}

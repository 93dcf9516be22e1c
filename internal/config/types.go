package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where token sets and replay records live
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// ProviderConfig holds the upstream provider endpoints and credentials,
// resolved from env references
type ProviderConfig struct {
	AuthorizationURL string   `json:"authorizationUrl"`
	TokenURL         string   `json:"tokenUrl"`
	ClientID         string   `json:"clientId"`
	ClientSecret     Secret   `json:"clientSecret"`
	RedirectURI      string   `json:"redirectUri"`
	Scopes           []string `json:"scopes,omitempty"`
	PKCE             bool     `json:"pkce,omitempty"`
}

// BrokerConfig is the broker section with resolved values
type BrokerConfig struct {
	Addr          string         `json:"addr"`
	BaseURL       string         `json:"baseURL"`
	AllowedOrigin string         `json:"allowedOrigin"`
	Provider      ProviderConfig `json:"provider"`

	// MasterSecret seeds HKDF derivation of the state-signing and
	// token-encryption keys
	MasterSecret Secret `json:"masterSecret"`

	StateTTL              time.Duration `json:"stateTtl"`
	ReplayTTL             time.Duration `json:"replayTtl"`
	ExchangeTimeout       time.Duration `json:"exchangeTimeout"`
	ReturnTokensToBrowser bool          `json:"returnTokensToBrowser,omitempty"`

	Storage             StorageKind `json:"storage"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string       `json:"version"`
	Broker  BrokerConfig `json:"broker"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved at load time
func ParseConfigValue(raw json.RawMessage) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return "", fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return value, nil
	}

	return "", fmt.Errorf("unknown reference type in config value")
}

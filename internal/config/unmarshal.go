package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for ProviderConfig so that
// credentials can be {"$env": "VAR"} references resolved immediately
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	// Use a raw type to avoid recursion
	type rawProvider struct {
		AuthorizationURL string          `json:"authorizationUrl"`
		TokenURL         string          `json:"tokenUrl"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      string          `json:"redirectUri"`
		Scopes           []string        `json:"scopes,omitempty"`
		PKCE             bool            `json:"pkce,omitempty"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.AuthorizationURL = raw.AuthorizationURL
	p.TokenURL = raw.TokenURL
	p.RedirectURI = raw.RedirectURI
	p.Scopes = raw.Scopes
	p.PKCE = raw.PKCE

	if raw.ClientID != nil {
		value, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		p.ClientID = value
	}

	if raw.ClientSecret != nil {
		value, err := ParseConfigValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		p.ClientSecret = Secret(value)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for BrokerConfig: resolves the
// master secret env reference and parses duration strings
func (b *BrokerConfig) UnmarshalJSON(data []byte) error {
	type rawBroker struct {
		Addr                  string          `json:"addr"`
		BaseURL               string          `json:"baseURL"`
		AllowedOrigin         string          `json:"allowedOrigin"`
		Provider              ProviderConfig  `json:"provider"`
		MasterSecret          json.RawMessage `json:"masterSecret"`
		StateTTL              string          `json:"stateTtl,omitempty"`
		ReplayTTL             string          `json:"replayTtl,omitempty"`
		ExchangeTimeout       string          `json:"exchangeTimeout,omitempty"`
		ReturnTokensToBrowser bool            `json:"returnTokensToBrowser,omitempty"`
		Storage               StorageKind     `json:"storage,omitempty"`
		GCPProject            string          `json:"gcpProject,omitempty"`
		FirestoreDatabase     string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection   string          `json:"firestoreCollection,omitempty"`
	}

	var raw rawBroker
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Addr = raw.Addr
	b.BaseURL = raw.BaseURL
	b.AllowedOrigin = raw.AllowedOrigin
	b.Provider = raw.Provider
	b.ReturnTokensToBrowser = raw.ReturnTokensToBrowser
	b.Storage = raw.Storage
	b.GCPProject = raw.GCPProject
	b.FirestoreDatabase = raw.FirestoreDatabase
	b.FirestoreCollection = raw.FirestoreCollection

	if raw.MasterSecret != nil {
		value, err := ParseConfigValue(raw.MasterSecret)
		if err != nil {
			return fmt.Errorf("parsing masterSecret: %w", err)
		}
		b.MasterSecret = Secret(value)
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"stateTtl", raw.StateTTL, &b.StateTTL},
		{"replayTtl", raw.ReplayTTL, &b.ReplayTTL},
		{"exchangeTimeout", raw.ExchangeTimeout, &b.ExchangeTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.name, err)
		}
		*d.field = parsed
	}

	return nil
}

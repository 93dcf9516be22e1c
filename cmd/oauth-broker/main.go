package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ledgerlink/oauth-broker/internal"
	"github.com/ledgerlink/oauth-broker/internal/config"
	"github.com/ledgerlink/oauth-broker/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v0.1",
		"broker": map[string]any{
			"addr":          ":8080",
			"baseURL":       "https://broker.yourcompany.com",
			"allowedOrigin": "https://app.yourcompany.com",
			"provider": map[string]any{
				"authorizationUrl": "https://appcenter.intuit.com/connect/oauth2",
				"tokenUrl":         "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
				"clientId":         map[string]string{"$env": "PROVIDER_CLIENT_ID"},
				"clientSecret":     map[string]string{"$env": "PROVIDER_CLIENT_SECRET"},
				"redirectUri":      "https://app.yourcompany.com/oauth/redirect",
				"scopes":           []string{"com.intuit.quickbooks.accounting"},
				"pkce":             false,
			},
			"masterSecret":    map[string]string{"$env": "BROKER_MASTER_SECRET"},
			"stateTtl":        "5m",
			"replayTtl":       "10m",
			"exchangeTimeout": "8s",
			"storage":         "memory",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting oauth-broker", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewOAuthBroker(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create broker: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}

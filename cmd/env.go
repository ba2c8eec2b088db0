package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/totalrecall/internal/config"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are missing
	Present  map[string]string // Settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
	Backend  string
}

// CheckRequiredConfig reports which credentials the loaded configuration
// carries for its store backend and providers
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
		Backend:  cfg.Store.Backend,
	}

	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		requireSetting(result, "store.dynamodb.region", cfg.Store.DynamoDB.Region, false)
		if cfg.Store.DynamoDB.AccessKeyID == "" {
			result.Warnings = append(result.Warnings, "no static AWS credentials, the default credential chain is used")
		} else {
			requireSetting(result, "store.dynamodb.access_key_id", cfg.Store.DynamoDB.AccessKeyID, true)
			requireSetting(result, "store.dynamodb.secret_access_key", cfg.Store.DynamoDB.SecretAccessKey, true)
		}
	case config.BackendRedis:
		requireSetting(result, "store.redis.addr", cfg.Store.Redis.Addr, false)
	case config.BackendPostgres:
		requireSetting(result, "store.postgres.url", cfg.Store.Postgres.URL, true)
	case config.BackendMemory:
		result.Warnings = append(result.Warnings, "in-memory store, conversations are lost on restart")
	}

	optional := map[string]string{
		"providers.openai.api_key":    cfg.Providers.OpenAI.APIKey,
		"providers.anthropic.api_key": cfg.Providers.Anthropic.APIKey,
	}
	for key, val := range optional {
		if val != "" {
			result.Present[key] = maskSecret(val)
		}
	}
	if len(cfg.ConfiguredProviders()) == 0 {
		result.Warnings = append(result.Warnings, "no provider API key is set (OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}

	return result
}

func requireSetting(result *ConfigCheckResult, key, value string, secret bool) {
	switch {
	case value == "":
		result.Missing = append(result.Missing, key)
	case secret:
		result.Present[key] = maskSecret(value)
	default:
		result.Present[key] = value
	}
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	fmt.Fprintln(w, "=== Configuration Check ===")
	fmt.Fprintf(w, "Store backend: %s\n\n", result.Backend)

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "❌ Missing required settings:")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "✓ Configured settings:")
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w, "")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ Warning: %s\n", warning)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, "✓ All required configuration is present")
	}

	fmt.Fprintln(w, "============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// Package config provides configuration management for the gateway.
//
// Configuration is read from an optional YAML file, a .env file and the
// process environment, in that order of increasing precedence:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Variables from .env that are not already set in the environment
//  4. Environment variable overrides
//  5. Validation (fails fast if invalid)
//
// # Environment Variables
//
// Backend credentials keep the names operators already use:
//
//   - BIT_USERNAME, BIT_PASSWORD for unified_login models
//   - AGENT_APP_KEY, AGENT_VISITOR_KEY for app_key models
//   - API_KEY protects the /v1 routes with a bearer token
//   - PRINT_STATISTICS_INTERVAL sets the usage report period in seconds
//
// Other settings follow BITGATE_SECTION_FIELD, for example
// BITGATE_PROXY_LISTEN_ADDRESS or BITGATE_TELEMETRY_LOGGING_LEVEL.
//
// # Models
//
// When no models are configured the gateway exposes "ibit" (unified_login)
// and "deepseek-r1" (app_key). A model without complete credentials is
// skipped by ActiveModels rather than rejected, so a deployment can run
// with only one backend configured.
//
// # Singleton
//
//	if err := config.Initialize("config.yaml"); err != nil {
//		log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// ReloadConfig swaps the global instance and runs hooks registered with
// OnReload; the usage package uses it to pick up pricing changes.
package config

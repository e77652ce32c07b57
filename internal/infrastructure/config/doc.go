// Package config loads and validates the GrowDash edge core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by GROWDASH_* environment variables. A missing
// config file is not an error at the call site: cmd/growdash falls back to
// Default() so the core can run on a freshly provisioned device with zero
// setup.
package config

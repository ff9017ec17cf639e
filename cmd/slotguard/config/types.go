// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the slotguard.yaml schema and its loader.
//
// The loader returns the decoded value; nothing in this package holds
// process-wide state. Commands thread the value down to the components
// that need it, overriding individual fields from flags.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/SlotGuard/pkg/validation"
)

// DefaultFile is the config file probed in the working directory when no
// --config flag is given.
const DefaultFile = "slotguard.yaml"

// =============================================================================
// Duration
// =============================================================================

// Duration is a time.Duration that decodes from YAML strings ("10s",
// "5m") or bare numbers (seconds).
type Duration time.Duration

// Duration converts to the standard library type.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return d.Duration().String()
}

// UnmarshalYAML accepts "90s"/"2m"-style strings and numeric seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(v * float64(time.Second))
		return nil
	}
	return fmt.Errorf("unparsable duration format '%s'", s)
}

// MarshalYAML writes the duration back in the string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// =============================================================================
// Schema
// =============================================================================

// Config is the full slotguard.yaml schema. Zero values defer to
// DefaultConfig; flags override individual fields after loading.
type Config struct {
	// Project describes the contract project under check.
	Project ProjectConfig `yaml:"project"`

	// Forge configures the layout tool invocation.
	Forge ForgeConfig `yaml:"forge"`

	// Artifacts configures the snapshot store the base side comes from.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Check configures diff gating and the optional on-chain verifier.
	Check CheckConfig `yaml:"check"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Serve configures the HTTP diff service.
	Serve ServeConfig `yaml:"serve"`
}

// ProjectConfig locates the contract project.
type ProjectConfig struct {
	// Root is the directory forge runs in. Defaults to the working
	// directory.
	Root string `yaml:"root"`

	// Contracts lists the contracts this project checks, bare (Vault) or
	// qualified (src/Vault.sol:Vault). A check without --contract uses
	// the single configured entry.
	Contracts []string `yaml:"contracts" validate:"dive,contract_spec"`
}

// ForgeConfig configures the layout tool.
type ForgeConfig struct {
	// Bin is the forge binary, resolved on PATH when not absolute.
	Bin string `yaml:"bin"`

	// MinVersion gates the run on the installed tool version. Older
	// releases emit a different layout schema. Empty disables the gate.
	MinVersion string `yaml:"min_version"`

	// Timeout bounds one tool invocation.
	Timeout Duration `yaml:"timeout"`
}

// ArtifactsConfig configures the snapshot store.
type ArtifactsConfig struct {
	// Bucket is the GCS bucket snapshots live in. Empty disables the
	// store; checks then need a --base-layout file.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every snapshot key.
	Prefix string `yaml:"prefix"`

	// CredentialsFile points at a service account key. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// PollInterval is how often a missing snapshot is re-probed while a
	// publish job races the check.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxWait caps the total time spent waiting for a snapshot.
	MaxWait Duration `yaml:"max_wait"`

	// CacheDir enables a local snapshot cache for persistent runners.
	// Empty disables caching.
	CacheDir string `yaml:"cache_dir"`
}

// CheckConfig carries check defaults; flags override per run.
type CheckConfig struct {
	// Removals surfaces removed variables as error findings.
	Removals bool `yaml:"removals"`

	// RPCURL is the Ethereum JSON-RPC endpoint removal evidence is read
	// from. Needs Address too; either alone disables on-chain reads.
	RPCURL string `yaml:"rpc_url" validate:"omitempty,rpc_endpoint"`

	// Address is the deployed contract address evidence is read at.
	Address string `yaml:"address" validate:"omitempty,eth_address"`

	// Timeout bounds one whole check run.
	Timeout Duration `yaml:"timeout"`

	// ReadTimeout bounds one on-chain storage read.
	ReadTimeout Duration `yaml:"read_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`

	// Dir enables file logging to the given directory.
	Dir string `yaml:"dir"`

	// Quiet disables stderr logging; report output is unaffected.
	Quiet bool `yaml:"quiet"`
}

// ServeConfig configures the HTTP diff service.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`

	// Debug turns on verbose request handling.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the values a missing or partial slotguard.yaml
// falls back to.
func DefaultConfig() Config {
	return Config{
		Project: ProjectConfig{
			Root: ".",
		},
		Forge: ForgeConfig{
			Bin:     "forge",
			Timeout: Duration(2 * time.Minute),
		},
		Artifacts: ArtifactsConfig{
			Prefix:       "snapshots",
			PollInterval: Duration(10 * time.Second),
			MaxWait:      Duration(5 * time.Minute),
		},
		Check: CheckConfig{
			Timeout:     Duration(10 * time.Minute),
			ReadTimeout: Duration(15 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
		Serve: ServeConfig{
			Addr: ":8799",
		},
	}
}

// =============================================================================
// Validation
// =============================================================================

// configValidate is the validator instance for the config schema.
// Initialized in init() with the custom validators the schema uses.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("eth_address", validateEthAddress)
	_ = configValidate.RegisterValidation("contract_spec", validateContractSpec)
	_ = configValidate.RegisterValidation("rpc_endpoint", validateRPCEndpoint)
}

func validateEthAddress(fl validator.FieldLevel) bool {
	return validation.ValidateAddress(fl.Field().String()) == nil
}

func validateContractSpec(fl validator.FieldLevel) bool {
	return validation.ValidateContractSpec(fl.Field().String()) == nil
}

func validateRPCEndpoint(fl validator.FieldLevel) bool {
	return validation.ValidateEndpoint(fl.Field().String()) == nil
}

// Validate checks the struct tags plus the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Check.Address != "" && c.Check.RPCURL == "" {
		return fmt.Errorf("invalid config: check.address is set but check.rpc_url is not; on-chain reads need both")
	}
	return nil
}

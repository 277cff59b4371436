// Package config holds the scanner's own runtime knobs: resolver
// addresses, query timeout, and the handful of limits the Bootstrap
// Engine and NSEC Walker need. Grounded on 0xERR0R-blocky/config's
// defaults+validate+yaml pattern, trimmed to this scanner's much
// smaller surface (see SPEC_FULL.md §10.3).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the scanner's runtime configuration.
type Config struct {
	// ResolverAddresses is the system's default recursive resolver
	// list, used whenever a query is made in recursive mode (§4.1).
	ResolverAddresses []string `yaml:"resolver_addresses" validate:"required,min=1,dive,required"`

	// Rotate shuffles ResolverAddresses before each recursive query,
	// mirroring dnspython's Resolver.rotate behavior referenced in
	// §4.1.
	Rotate bool `yaml:"rotate" default:"false"`

	// QueryTimeout bounds a single DNS exchange.
	QueryTimeout time.Duration `yaml:"query_timeout" default:"5s" validate:"gt=0"`

	// WalkStepLimit bounds the number of NSEC queries issued per
	// nameserver during a single NSEC-walk (§4.4 "an implementation
	// should impose a per-walk upper bound to bound denial-of-service
	// risk").
	WalkStepLimit int `yaml:"walk_step_limit" default:"10000" validate:"gt=0"`

	// WorkerPoolSize is the configured number of delegations to scan
	// concurrently. Nothing in this module reads it: the dsbootstrap
	// command scans its jobs one at a time.
	WorkerPoolSize int `yaml:"worker_pool_size" default:"16" validate:"gt=0"`
}

var validate = validator.New()

// Default returns a Config with every field set to its default and
// no resolver addresses populated; callers must fill ResolverAddresses
// before use (it has no sensible default).
func Default() *Config {
	c := &Config{}
	_ = defaults.Set(c)
	return c
}

// Load reads a YAML config file at path, fills unset fields with their
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config: set defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return c, nil
}

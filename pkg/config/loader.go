package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configs that check cross-field rules after
// the environment has been parsed.
type Validator interface {
	Validate() error
}

// Load parses environment variables into the provided struct using its
// `env` tags, then runs Validate when the struct implements Validator.
//
// Example:
//
//	type Config struct {
//	    Port  int    `env:"CART_HTTP_PORT" envDefault:"8002"`
//	    Store string `env:"CART_STORE" envDefault:"redis"`
//	}
func Load(cfg any) error {
	return LoadWithOptions(cfg, env.Options{})
}

// LoadWithOptions is Load with explicit env parsing options.
func LoadWithOptions(cfg any, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}

package factory

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pool"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config declares the capability servers tools may be assembled from.
type Config struct {
	// Servers specifies the list of capability servers.
	Servers []*pool.Descriptor `json:"servers" yaml:"servers" validate:"dive,required"`
}

// LoadConfig from file, expanding environment references in values.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required descriptor fields and ID/name uniqueness.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid server configuration")
	}
	seen := map[string]bool{}
	for _, srv := range c.Servers {
		if seen[srv.Name] {
			return errors.Errorf("duplicate server name: %s", srv.Name)
		}
		seen[srv.Name] = true
	}
	return nil
}

// Lookup returns the descriptor with the given name, nil when absent.
func (c *Config) Lookup(name string) *pool.Descriptor {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv
		}
	}
	return nil
}

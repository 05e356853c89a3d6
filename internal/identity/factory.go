package identity

import (
	"fmt"

	"packsync-go/internal/config"
)

// NewRegistryFromConfig builds the provider registry for the configured
// identity. The configured key file is registered first.
func NewRegistryFromConfig(cfg config.IdentityConfig) (*Registry, *KeyFile, error) {
	switch cfg.Type {
	case "keyfile", "":
		kf := NewKeyFile(cfg)
		return NewRegistry(kf, KeyStringProvider{}, SeedProvider{}), kf, nil
	default:
		return nil, nil, fmt.Errorf("unknown identity type: %q", cfg.Type)
	}
}

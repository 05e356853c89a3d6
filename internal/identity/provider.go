package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrMissingInput    = errors.New("missing provider input")
)

// Input describes one value a provider needs from the user.
type Input struct {
	Name   string
	Label  string
	Secret bool
	// Choices, when set, lists the accepted values.
	Choices []string
}

// Provider produces identities from some key source.
type Provider interface {
	Type() string
	DisplayName() string
	// Available reports whether the provider can be used in this environment.
	Available() bool
	Inputs() []Input
	RequestIdentities(ctx context.Context, inputs map[string]string) ([]Identity, error)
}

// Registry holds the providers known to the process.
type Registry struct {
	providers []Provider
}

// NewRegistry returns a registry holding providers in the given order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider of the same type.
func (r *Registry) Register(p Provider) {
	i := slices.IndexFunc(r.providers, func(q Provider) bool { return q.Type() == p.Type() })
	if i >= 0 {
		r.providers[i] = p
		return
	}
	r.providers = append(r.providers, p)
}

// List returns the registered providers, optionally only the available ones.
func (r *Registry) List(onlyAvailable bool) []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if onlyAvailable && !p.Available() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns the provider registered under typ.
func (r *Registry) Get(typ string) (Provider, error) {
	for _, p := range r.providers {
		if p.Type() == typ {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, typ)
}

func requireInput(inputs map[string]string, name string) (string, error) {
	v, ok := inputs[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, name)
	}
	return v, nil
}

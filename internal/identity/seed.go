package identity

import "context"

// SeedProvider derives an identity from a seed message, the way
// authenticator and wallet providers derive one from a signed challenge.
type SeedProvider struct{}

var _ Provider = SeedProvider{}

func (SeedProvider) Type() string        { return "seed" }
func (SeedProvider) DisplayName() string { return "Seed phrase" }
func (SeedProvider) Available() bool     { return true }

func (SeedProvider) Inputs() []Input {
	return []Input{{Name: "seed", Label: "Seed message", Secret: true}}
}

func (SeedProvider) RequestIdentities(ctx context.Context, inputs map[string]string) ([]Identity, error) {
	seed, err := requireInput(inputs, "seed")
	if err != nil {
		return nil, err
	}
	id, err := FromSeed([]byte(seed))
	if err != nil {
		return nil, err
	}
	return []Identity{id}, nil
}

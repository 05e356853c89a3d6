package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"packsync-go/internal/app"
	"packsync-go/internal/identity"
	"packsync-go/internal/keys"
)

// selectIdentity prompts for the inputs of the named provider and returns
// the first identity it produces.
func selectIdentity(ctx context.Context, a *app.App, providerType string) (identity.Identity, error) {
	for _, p := range a.Providers(true) {
		if p.Type() != providerType {
			continue
		}
		inputs, err := promptInputs(p)
		if err != nil {
			return nil, err
		}
		ids, err := a.RequestIdentities(ctx, providerType, inputs)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errors.New("provider returned no identity")
		}
		return ids[0], nil
	}
	return nil, fmt.Errorf("%w: %q is not available", identity.ErrUnknownProvider, providerType)
}

func printPublicKey(pub keys.PublicKey) error {
	text, err := identity.FormatPublicKey(pub)
	if err != nil {
		return err
	}
	id, err := keys.ID(pub, false)
	if err != nil {
		return err
	}
	short, err := keys.ShortID(pub)
	if err != nil {
		return err
	}
	fmt.Printf("Public key: %s\n", text)
	fmt.Printf("ID:         %s\n", id)
	fmt.Printf("Short ID:   %s\n", short)
	return nil
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the signing key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new passphrase-protected key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeyFile().IsConfigured() && !force {
			return errors.New("key pair already exists, use --force to replace it")
		}
		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		pub, err := a.KeyFile().Setup(passphrase)
		if err != nil {
			return fmt.Errorf("creating key pair: %w", err)
		}
		return printPublicKey(pub)
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key and protect it with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		encoding, _ := cmd.Flags().GetString("encoding")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := readSecret("Private key: ")
		if err != nil {
			return err
		}
		priv, err := identity.ParsePrivateKey(text, encoding)
		if err != nil {
			return err
		}
		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := a.KeyFile().Import(priv, passphrase); err != nil {
			return fmt.Errorf("importing key: %w", err)
		}
		return printPublicKey(priv.GetPublic())
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pub, err := a.KeyFile().PublicKey()
		if err != nil {
			return err
		}
		return printPublicKey(pub)
	},
}

var keyProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List identity providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, p := range a.Providers(false) {
			status := "available"
			if !p.Available() {
				status = "unavailable"
			}
			fmt.Printf("%-12s  %-20s  %s\n", p.Type(), p.DisplayName(), status)
		}
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyInitCmd)
	keyInitCmd.Flags().Bool("force", false, "Replace an existing key pair")
	keyCmd.AddCommand(keyImportCmd)
	keyImportCmd.Flags().String("encoding", identity.EncodingMultibase, "Key encoding: multibase or hex")
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyProvidersCmd)

	rootCmd.AddCommand(keyCmd)
}

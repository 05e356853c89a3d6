package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"packsync-go/internal/identity"
	"packsync-go/internal/pack"
	"packsync-go/internal/profile"
)

// pack command
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Create and inspect score packs",
}

var packCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and sign a pack",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		content, _ := flags.GetString("content")
		title, _ := flags.GetString("title")
		updated, _ := flags.GetString("updated")
		previous, _ := flags.GetString("previous")
		provider, _ := flags.GetString("identity")

		info := pack.Info{Title: title, Updated: updated}
		info.Description, _ = flags.GetString("description")
		info.Summary, _ = flags.GetString("summary")
		info.Copyright, _ = flags.GetString("copyright")
		info.Created, _ = flags.GetString("created")
		info.Tags, _ = flags.GetStringSlice("tag")
		if info.Updated == "" {
			info.Updated = time.Now().UTC().Format(time.RFC3339Nano)
		}

		c, err := cid.Decode(content)
		if err != nil {
			return fmt.Errorf("invalid content cid: %w", err)
		}
		info.Content = c
		if thumb, _ := flags.GetString("thumbnail"); thumb != "" {
			if info.Thumbnail, err = cid.Decode(thumb); err != nil {
				return fmt.Errorf("invalid thumbnail cid: %w", err)
			}
		}
		if name, _ := flags.GetString("source"); name != "" {
			url, _ := flags.GetString("source-url")
			info.Sources = []pack.Source{{Name: name, URL: url}}
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := selectIdentity(cmd.Context(), a, provider)
		if err != nil {
			return err
		}

		var out cid.Cid
		if previous != "" {
			out, err = a.RevisePack(cmd.Context(), previous, info, id)
		} else {
			out, err = a.CreatePack(cmd.Context(), info, id)
		}
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var packShowCmd = &cobra.Command{
	Use:   "show CID",
	Short: "Show a pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.FetchPack(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		p := view.Pack

		fmt.Printf("Title:     %s\n", p.Title)
		fmt.Printf("Score:     %s\n", p.Content)
		fmt.Printf("Updated:   %s\n", p.Updated)
		if p.Created != "" {
			fmt.Printf("Created:   %s\n", p.Created)
		}
		if p.Previous != "" {
			fmt.Printf("Previous:  %s\n", p.Previous)
		}
		if len(p.Tags) > 0 {
			fmt.Printf("Tags:      %s\n", strings.Join(p.Tags, ", "))
		}
		for _, s := range p.Sources {
			fmt.Printf("Source:    %s %s\n", s.Name, s.URL)
			if s.User != nil {
				fmt.Printf("  User:    %s\n", s.User)
			}
		}
		switch {
		case view.VerifyErr != nil:
			fmt.Printf("Signature: malformed (%v)\n", view.VerifyErr)
		case view.Verified:
			fmt.Println("Signature: valid")
		case view.Signed:
			fmt.Println("Signature: INVALID")
		default:
			fmt.Println("Signature: none")
		}
		if view.HasUploader {
			fmt.Printf("Uploader:  %s\n", view.Uploader.Name)
		}
		return nil
	},
}

var packVerifyCmd = &cobra.Command{
	Use:   "verify CID",
	Short: "Verify the signature of a pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.FetchPack(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !view.Signed {
			return pack.ErrNoSignature
		}
		if view.VerifyErr != nil {
			return view.VerifyErr
		}
		if !view.Verified {
			return errors.New("signature does not match pack")
		}
		fmt.Println("OK")
		return nil
	},
}

// profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show and publish profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [PUBLIC_KEY]",
	Short: "Show the profile of a key, by default the configured one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pub, err := a.KeyFile().PublicKey()
		if len(args) == 1 {
			pub, err = identity.ParsePublicKey(args[0])
		}
		if err != nil {
			return err
		}

		prof, err := a.Profile(cmd.Context(), pub)
		fmt.Printf("Short ID: %s\n", prof.ShortID)
		if err != nil {
			fmt.Printf("No published profile: %v\n", err)
			return nil
		}
		fmt.Printf("Name:     %s\n", prof.Name)
		fmt.Printf("URL:      %s\n", prof.URL)
		fmt.Printf("Avatar:   %s\n", prof.Avatar)
		return nil
	},
}

var profilePublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a profile for the signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("identity")
		var prof profile.Profile
		prof.Name, _ = cmd.Flags().GetString("name")
		prof.URL, _ = cmd.Flags().GetString("url")
		prof.Avatar, _ = cmd.Flags().GetString("avatar")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := selectIdentity(cmd.Context(), a, provider)
		if err != nil {
			return err
		}
		name, err := a.PublishProfile(cmd.Context(), id, prof)
		if err != nil {
			return err
		}
		fmt.Printf("Published under %s\n", name)
		return nil
	},
}

func init() {
	f := packCreateCmd.Flags()
	f.String("content", "", "CID of the score file")
	f.String("title", "", "Title of the score")
	f.String("updated", "", "Update date, defaults to now")
	f.String("created", "", "Creation date")
	f.String("description", "", "Description")
	f.String("summary", "", "Summary")
	f.String("copyright", "", "Copyright notice")
	f.StringSlice("tag", nil, "Tag, may be repeated")
	f.String("thumbnail", "", "CID of the thumbnail image")
	f.String("source", "", "Name of the source the score was imported from")
	f.String("source-url", "", "URL of the score at its source")
	f.String("previous", "", "CID of the revision this pack replaces")
	f.String("identity", "keyfile", "Identity provider used to sign")
	packCreateCmd.MarkFlagRequired("content")
	packCreateCmd.MarkFlagRequired("title")

	packCmd.AddCommand(packCreateCmd)
	packCmd.AddCommand(packShowCmd)
	packCmd.AddCommand(packVerifyCmd)

	profilePublishCmd.Flags().String("name", "", "Display name")
	profilePublishCmd.Flags().String("url", "", "Homepage")
	profilePublishCmd.Flags().String("avatar", "", "CID of the avatar image")
	profilePublishCmd.Flags().String("identity", "keyfile", "Identity provider used to sign")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profilePublishCmd)

	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(profileCmd)
}

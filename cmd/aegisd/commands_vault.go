package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/localmind/aegis/internal/vault/store"
	"github.com/localmind/aegis/pkg/models"
)

// buildVaultCmd builds the "vault" command group for storing, listing,
// and removing credentials (spec §4.5).
func buildVaultCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage stored credentials",
	}
	cmd.AddCommand(
		buildVaultSetCmd(configPath),
		buildVaultGetCmd(configPath),
		buildVaultListCmd(configPath),
		buildVaultDeleteCmd(configPath),
	)
	return cmd
}

func buildVaultSetCmd(configPath *string) *cobra.Command {
	var provider, credType, secret string
	cmd := &cobra.Command{
		Use:   "set KEY",
		Short: "Store or update a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cred := models.Credential{
				Key:       args[0],
				Type:      models.CredentialType(credType),
				Provider:  provider,
				Data:      map[string]any{"secret": secret},
				CreatedAt: time.Now(),
			}
			if err := a.vault.Create(cred); err != nil {
				if !errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("store credential: %w", err)
				}
				if err := a.vault.Update(cred); err != nil {
					return fmt.Errorf("update credential: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored credential %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider this credential belongs to")
	cmd.Flags().StringVar(&credType, "type", string(models.CredentialAPIKey), "Credential type (api_key, oauth, bearer, basic, custom)")
	cmd.Flags().StringVar(&secret, "secret", "", "Secret value")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func buildVaultGetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a stored credential's metadata (never the secret)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.vault.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key=%s provider=%s type=%s created=%s\n",
				cred.Key, cred.Provider, cred.Type, cred.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	return cmd
}

func buildVaultListCmd(configPath *string) *cobra.Command {
	var credType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials' metadata (never the secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.vault.List(models.CredentialType(credType))
			if err != nil {
				return err
			}
			for _, c := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "key=%s provider=%s type=%s created=%s\n",
					c.Key, c.Provider, c.Type, c.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&credType, "type", "", "Filter by credential type (api_key, oauth, bearer, basic, custom)")
	return cmd
}

func buildVaultDeleteCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.vault.Delete(args[0])
		},
	}
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/aegis/internal/oauth"
)

// buildAuthCmd builds the "auth" command group for running the PKCE and
// device-code OAuth flows against a configured provider (spec §4.6).
func buildAuthCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a configured OAuth provider",
	}
	cmd.AddCommand(buildAuthLoginCmd(configPath), buildAuthDeviceCmd(configPath))
	return cmd
}

func oauthProviderConfig(a *app, provider string) (oauth.Config, error) {
	pc, ok := a.cfg.OAuth.Providers[provider]
	if !ok {
		return oauth.Config{}, fmt.Errorf("no oauth provider %q configured", provider)
	}
	return oauth.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		AuthURL:      pc.AuthURL,
		TokenURL:     pc.TokenURL,
		RedirectURI:  pc.RedirectURL,
		Scopes:       pc.Scopes,
	}, nil
}

func buildAuthLoginCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login PROVIDER",
		Short: "Run the PKCE authorization code flow for PROVIDER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := oauthProviderConfig(a, args[0])
			if err != nil {
				return err
			}
			if _, err := a.oauth.AuthenticateOAuth(cmd.Context(), args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "authorized %q\n", args[0])
			return nil
		},
	}
	return cmd
}

func buildAuthDeviceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device PROVIDER",
		Short: "Run the RFC 8628 device authorization grant for PROVIDER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			pc, ok := a.cfg.OAuth.Providers[args[0]]
			if !ok {
				return fmt.Errorf("no oauth provider %q configured", args[0])
			}
			dcCfg := oauth.DeviceCodeConfig{
				ClientID:      pc.ClientID,
				DeviceAuthURL: pc.DeviceURL,
				TokenURL:      pc.TokenURL,
				Scopes:        pc.Scopes,
			}
			if _, err := a.oauth.AuthenticateDeviceCode(cmd.Context(), args[0], dcCfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "authorized %q\n", args[0])
			return nil
		},
	}
	return cmd
}

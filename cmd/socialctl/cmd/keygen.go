package cmd

import (
	"fmt"

	"github.com/pilab-dev/shadow-social/internal/crypto"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a base64 AES-256 key for SOCIAL_CREDENTIAL_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.KeyToBase64(key))
			return nil
		},
	}
}

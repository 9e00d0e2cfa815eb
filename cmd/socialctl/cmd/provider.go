package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pilab-dev/shadow-social/cmd/socialctl/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProviderCmd(newClient func() (*client.AdminClient, error)) *cobra.Command {
	providerCmd := &cobra.Command{
		Use:     "provider",
		Short:   "Manage provider configurations",
		Aliases: []string{"providers"},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			providers, err := c.ListProviders(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tATTRIBUTES\tUPDATED")
			for _, p := range providers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ProviderID, strings.Join(p.Attributes, ","), p.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <provider-id>",
		Short: "Show a provider configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			p, err := c.GetProvider(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(p)
		},
	}

	var attrs map[string]string
	setCmd := &cobra.Command{
		Use:     "set <provider-id>",
		Short:   "Create or replace a provider configuration",
		Example: "  socialctl provider set github --attr clientId=abc --attr clientSecret=xyz",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			p, err := c.SaveProvider(cmd.Context(), args[0], attrs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provider %s saved (%s)\n", p.ProviderID, strings.Join(p.Attributes, ", "))
			return nil
		},
	}
	setCmd.Flags().StringToStringVar(&attrs, "attr", nil, "attribute as name=value, repeatable")
	_ = setCmd.MarkFlagRequired("attr")

	deleteCmd := &cobra.Command{
		Use:   "delete <provider-id>",
		Short: "Delete a provider configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.DeleteProvider(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provider %s deleted\n", args[0])
			return nil
		},
	}

	attributesCmd := &cobra.Command{
		Use:   "attributes <provider-id>",
		Short: "Show the attributes a provider accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			a, err := c.ProviderAttributes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(a)
		},
	}

	providerCmd.AddCommand(listCmd, getCmd, setCmd, deleteCmd, attributesCmd)
	return providerCmd
}

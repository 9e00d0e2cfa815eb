package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-social/cmd/socialctl/client"
	"github.com/pilab-dev/shadow-social/config"
	sociallog "github.com/pilab-dev/shadow-social/log"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const AppName = "socialctl"

// NewRootCmd builds the command tree. Output goes to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "socialctl manages the social sign-in providers of a Shadow Social server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return sociallog.SetupWriter(cmd.ErrOrStderr(), v.GetString("log-level"), true)
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "server endpoint")
	flags.String("admin-token", "", "admin API token (env SOCIAL_ADMIN_TOKEN)")
	flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.String("log-level", "warn", "log level")
	_ = v.BindPFlags(flags)

	newClient := func() (*client.AdminClient, error) {
		return client.NewAdminClient(v.GetString("server"), v.GetString("admin-token"), v.GetDuration("timeout"))
	}

	rootCmd.AddCommand(newProviderCmd(newClient), newKeygenCmd())
	return rootCmd
}

// Execute runs the CLI against stdout.
func Execute(ctx context.Context) error {
	err := NewRootCmd(os.Stdout).ExecuteContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Command failed")
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

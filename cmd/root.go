// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evoludigit/pggit/cmd/flags"
	"github.com/evoludigit/pggit/pkg/store"
)

// Version is the pggit version
var Version = "development"

func init() {
	viper.SetEnvPrefix("PGGIT")
	viper.AutomaticEnv()

	flags.PgConnectionFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "pggit",
	Short:        "Git-style schema version control for Postgres",
	SilenceUsage: true,
	Version:      Version,
}

// NewStore opens a store.Store against the configured Postgres URL and
// schemas. Callers must Close() it.
func NewStore(ctx context.Context) (*store.Store, error) {
	return store.New(ctx, flags.PostgresURL(), flags.Schema(), flags.PggitSchema())
}

// author returns the configured author, falling back to the OS user so
// commits always carry a name.
func author() string {
	if a := flags.Author(); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "pggit"
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(gcCmd)

	return rootCmd.Execute()
}

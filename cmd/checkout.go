// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkoutCreate bool

func init() {
	checkoutCmd.Flags().BoolVarP(&checkoutCreate, "create", "b", false, "create the branch before checking it out")
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch>",
	Short: "Switch HEAD to a branch and materialize its commit into the working schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		head, err := s.Checkout(ctx, args[0], checkoutCreate, author())
		if err != nil {
			return err
		}

		fmt.Printf("switched to %q at %s\n", head.CurrentBranch, head.CurrentCommitID)
		return nil
	},
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var branchFrom string

func init() {
	branchCmd.Flags().StringVar(&branchFrom, "from", "", "branch to snapshot from (defaults to the current branch)")
}

var branchCmd = &cobra.Command{
	Use:   "branch <name>",
	Short: "Create a new branch pointing at the current (or --from) branch's commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		ref, err := s.CreateBranch(ctx, args[0], branchFrom, author())
		if err != nil {
			return err
		}

		fmt.Printf("created branch %q at %s\n", ref.Name, ref.Target)
		return nil
	},
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/objects"
)

var resetCmd = &cobra.Command{
	Use:   "reset-hard <commit-id>",
	Short: "Move the current branch back to commit-id and materialize it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ResetHard(ctx, objects.ID(args[0])); err != nil {
			return err
		}

		fmt.Printf("reset to %s\n", args[0])
		return nil
	},
}

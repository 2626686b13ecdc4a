// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/objects"
)

var revertMessage string

func init() {
	revertCmd.Flags().StringVarP(&revertMessage, "message", "m", "", "revert commit message")
}

var revertCmd = &cobra.Command{
	Use:   "revert <commit-id>",
	Short: "Create a new commit that undoes commit-id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.RevertCommit(ctx, objects.ID(args[0]), revertMessage, author(), time.Now())
		if err != nil {
			return err
		}

		fmt.Println(id)
		return nil
	},
}

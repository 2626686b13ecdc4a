// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Commit the live schema's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.Commit(ctx, args[0], author(), time.Now())
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Println("nothing to commit, working schema matches HEAD")
			return nil
		}

		fmt.Println(id)
		return nil
	},
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "List pending changes between the live schema and HEAD",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		staged, err := s.StageChanges(ctx)
		if err != nil {
			return err
		}

		if len(staged) == 0 {
			fmt.Println("nothing to stage, working schema matches HEAD")
			return nil
		}

		for _, c := range staged {
			fmt.Printf("%s\t%s\n", c.ChangeType, c.ObjectName)
		}
		return nil
	},
}

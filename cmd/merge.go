// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/merge"
)

var (
	mergeMessage  string
	mergeStrategy string
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "merge commit message")
	mergeCmd.Flags().StringVar(&mergeStrategy, "strategy", "auto", "merge strategy: auto, strict, ours, theirs")
}

var mergeCmd = &cobra.Command{
	Use:   "merge <source-branch>",
	Short: "Merge source-branch into the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		message := mergeMessage
		if message == "" {
			message = fmt.Sprintf("merge %s", args[0])
		}

		id, err := s.Merge(ctx, args[0], message, author(), merge.Strategy(mergeStrategy), time.Now())
		if err != nil {
			var conflicts *merge.MergeConflicts
			if errors.As(err, &conflicts) {
				fmt.Println("merge conflicts:")
				for _, c := range conflicts.Conflicts {
					fmt.Printf("  %s\t%s\n", c.Classification, c.Path)
				}
				return err
			}
			if errors.Is(err, merge.ErrAlreadyUpToDate) {
				fmt.Println("already up to date")
				return nil
			}
			return err
		}

		fmt.Println(id)
		return nil
	},
}

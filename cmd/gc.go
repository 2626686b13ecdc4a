// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune commits, trees and blobs no branch or tag can reach",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.GC(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pruned %d commits, %d trees, %d blobs\n", result.PrunedCommits, result.PrunedTrees, result.PrunedBlobs)
		return nil
	},
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/depgraph"
)

var (
	analyzeOp       string
	analyzeMaxDepth int
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOp, "op", "DROP", "operation to analyze: CREATE or DROP")
	analyzeCmd.Flags().IntVar(&analyzeMaxDepth, "max-depth", 10, "maximum dependency traversal depth")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <object-name>",
	Short: "Show the blast radius of a CREATE/DROP on object-name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		impacts, err := s.AnalyzeDependencyImpact(ctx, args[0], depgraph.Operation(analyzeOp), analyzeMaxDepth)
		if err != nil {
			return err
		}

		if len(impacts) == 0 {
			fmt.Println("no dependent objects")
			return nil
		}

		for _, i := range impacts {
			fmt.Printf("[%s/%s]\t%s\t%s\n", i.ImpactLevel, i.Risk, i.Affected, i.SuggestedAction)
		}
		return nil
	},
}

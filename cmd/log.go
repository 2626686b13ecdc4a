// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logLimit int

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "maximum number of commits to show")
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history reachable from HEAD",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.Log(ctx, logLimit)
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Message)
		}
		return nil
	},
}

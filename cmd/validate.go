// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run structural validations against the live working schema's dependency graph",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		issues, err := s.ValidateSchema(ctx)
		if err != nil {
			return err
		}

		if len(issues) == 0 {
			fmt.Println("no issues found")
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("[%s] %s: %s (%s)\n", issue.Severity, issue.Kind, issue.Description, issue.Object)
		}
		return nil
	},
}

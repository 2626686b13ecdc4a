// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/refstore"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the pggit bookkeeping schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Init(ctx); err != nil {
			return err
		}

		if _, err := s.Refs.InitBranch(ctx, "main", author()); err != nil && !errors.Is(err, refstore.ErrBranchExists) {
			return err
		}
		if err := s.Refs.InitHead(ctx, "main", s.WorkingSchema()); err != nil {
			return err
		}

		fmt.Printf("initialized pggit schema %q, tracking %q on branch main\n", s.PggitSchema(), s.WorkingSchema())
		return nil
	},
}

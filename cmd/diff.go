// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evoludigit/pggit/pkg/diffjson"
	"github.com/evoludigit/pggit/pkg/objects"
)

var diffJSON bool

func init() {
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "emit the change set as schema-validated JSON")
}

var diffCmd = &cobra.Command{
	Use:   "diff [from] [to]",
	Short: "Show the schema-level change set between two commits",
	Long:  "Show the schema-level change set between two commits. Omitting [to] compares against the live working schema; omitting both compares HEAD against the live working schema.",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := NewStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		var from, to objects.ID
		switch len(args) {
		case 0:
			head, err := s.Refs.GetHead(ctx)
			if err != nil {
				return err
			}
			from = head.CurrentCommitID
			to = objects.NullID
		case 1:
			from = objects.ID(args[0])
			to = objects.NullID
		case 2:
			from = objects.ID(args[0])
			to = objects.ID(args[1])
		}

		changes, err := s.Diff(ctx, from, to)
		if err != nil {
			return err
		}

		if diffJSON {
			out, err := diffjson.Marshal(changes)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(changes) == 0 {
			fmt.Println("no differences")
			return nil
		}

		for _, c := range changes {
			fmt.Printf("%s\t%s\n", c.Kind, c.Path)
		}
		return nil
	},
}

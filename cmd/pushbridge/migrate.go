package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func migrateCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move plaintext credentials of the instance to their enc_ attributes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.MigrateCredentials(cmd.Context())
			if err != nil {
				return err
			}
			if !res.Migrated {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated: %s\n", strings.Join(res.Attributes, ", "))
			return nil
		},
	}
}

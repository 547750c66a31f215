package main

import (
	"fmt"

	"github.com/dvloznov/fines-ledger/internal/filedate"
	"github.com/spf13/cobra"
)

func newDateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "date NAME...",
		Short: "Print the statement date derived from each file name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, filedate.Parse(name))
			}
			return nil
		},
	}
}

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var eraseAll bool

var eraseCmd = &cobra.Command{
	Use:   "erase [<from> <to>]",
	Short: "Erase the sectors covering an address range, or all of flash",
	Args: func(cmd *cobra.Command, args []string) error {
		if eraseAll && len(args) != 0 {
			return errors.New("--all takes no range")
		}
		if !eraseAll && len(args) != 2 {
			return errors.New("need a start and end address, or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		prog := t.programmer()
		if eraseAll {
			return prog.EraseAll(cmd.Context())
		}

		lo, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		hi, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		return prog.Erase(cmd.Context(), lo, hi)
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	eraseCmd.Flags().BoolVarP(&eraseAll, "all", "a", false, "erase every sector")
}

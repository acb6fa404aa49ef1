package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var goARM bool

var goCmd = &cobra.Command{
	Use:   "go <address>",
	Short: "Start code at an address through the bootloader",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		return t.programmer().Launch(cmd.Context(), addr, !goARM)
	},
}

var bankCmd = &cobra.Command{
	Use:   "bank <n>",
	Short: "Select the flash bank a dual bank part boots from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bank, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid bank %q", args[0])
		}

		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		return t.programmer().SetBootBank(cmd.Context(), bank)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the target into its application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := openPort()
		if err != nil {
			return err
		}
		defer port.Close()

		return (&target{port: port}).run()
	},
}

func init() {
	rootCmd.AddCommand(goCmd, bankCmd, resetCmd)
	goCmd.Flags().BoolVar(&goARM, "arm", false, "start in ARM mode instead of Thumb")
}

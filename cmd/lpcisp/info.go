package main

import (
	"fmt"

	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the target and print its bootloader details",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		out := cmd.OutOrStdout()
		m := t.member
		fmt.Fprintf(out, "Device:     %s (%s family)\n", m.Name, m.Family.Name)
		for i, id := range t.ids {
			fmt.Fprintf(out, "Part ID %d:  0x%08X\n", i, id)
		}

		version, err := t.session.ReadBootCodeVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Boot code:  %v\n", version)

		serial, err := t.session.ReadSerialNumber()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Serial:     %v\n", serial)

		fmt.Fprintf(out, "Flash:      %d KiB in %d bank(s) of %d sectors\n",
			m.FlashSize>>10, m.BankCount(), m.SectorCount())
		for _, r := range m.Regions() {
			fmt.Fprintf(out, "RAM:        0x%08X %d KiB\n", r.Base, r.Size>>10)
		}

		windows := m.TransferWindows()
		size, err := m.SelectChunkSize(windows)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Transfer:   %d chunks of %d bytes\n", geometry.ChunkCount(windows, size), size)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

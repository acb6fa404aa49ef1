package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"zappem.net/pub/debug/xcrc32"
	"zappem.net/pub/debug/xxd"
)

var readCmd = &cobra.Command{
	Use:   "read <address> <length> [outfile]",
	Short: "Read memory and dump it or save it to a file",
	Long: `Read memory from the target. Without an output file the data is printed
as a hex dump. Address and length must be multiples of four.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid length %q", args[1])
		}

		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		data, err := t.programmer().Read(cmd.Context(), addr, int(n))
		if err != nil {
			return err
		}

		_, crc := xcrc32.NewCRC32(data)
		logger.WithFields(logrus.Fields{
			"prefix": "read",
			"bytes":  len(data),
			"crc32":  fmt.Sprintf("0x%08X", crc),
		}).Infof("read 0x%08X", addr)

		if len(args) == 3 {
			return os.WriteFile(args[2], data, 0o644)
		}
		xxd.Print(int(addr), data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}

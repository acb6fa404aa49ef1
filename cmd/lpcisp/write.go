package main

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-lpcisp/bootloader"
	"github.com/moffa90/go-lpcisp/firmware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	writeBase      string
	writeEraseMode string
	writeVerify    bool
	writeCRP       string
	writeCRPMax    string
	writeNoCRP     bool
	writeChunkSize int
	writeRun       bool
)

func parseCRPLevel(s string) (bootloader.CRPLevel, error) {
	switch strings.ToLower(s) {
	case "none", "0":
		return bootloader.CRPNone, nil
	case "1", "crp1":
		return bootloader.CRP1, nil
	case "2", "crp2":
		return bootloader.CRP2, nil
	case "3", "crp3":
		return bootloader.CRP3, nil
	case "noisp", "no_isp", "4":
		return bootloader.CRPNoISP, nil
	}
	return 0, fmt.Errorf("unknown CRP level %q", s)
}

func writeOptions() ([]bootloader.Option, error) {
	var opts []bootloader.Option

	switch writeEraseMode {
	case "eager":
		opts = append(opts, bootloader.WithEraseMode(bootloader.EraseEager))
	case "on-demand":
		opts = append(opts, bootloader.WithEraseMode(bootloader.EraseOnDemand))
	default:
		return nil, fmt.Errorf("unknown erase mode %q", writeEraseMode)
	}

	level, err := parseCRPLevel(writeCRP)
	if err != nil {
		return nil, err
	}
	maxLevel, err := parseCRPLevel(writeCRPMax)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		bootloader.WithVerifyAfterProgram(writeVerify),
		bootloader.WithCRP(bootloader.CRPPolicy{Level: level, MaxLevel: maxLevel, Disabled: writeNoCRP}),
		bootloader.WithChunkSize(writeChunkSize),
	)
	return opts, nil
}

var writeCmd = &cobra.Command{
	Use:   "write <firmware.hex|firmware.bin>",
	Short: "Program a firmware image into flash",
	Long: `Program an Intel HEX or raw binary image into flash.

Raw binaries are placed at --base. The vector table checksum is fixed up
and the code read protection word is set according to --crp and --crp-max.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := parseAddress(writeBase)
		if err != nil {
			return err
		}
		opts, err := writeOptions()
		if err != nil {
			return err
		}

		img, err := firmware.Load(args[0], base)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"prefix":      "image",
			"bytes":       img.Size(),
			"segments":    len(img.Segments),
			"fingerprint": fmt.Sprintf("0x%08X", img.Fingerprint()),
		}).Infof("loaded %s", args[0])

		t, err := connectToTarget(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		out := cmd.ErrOrStderr()
		opts = append(opts, bootloader.WithProgressCallback(func(p bootloader.Progress) {
			switch p.Phase {
			case bootloader.PhaseErasing, bootloader.PhaseProgramming:
				fmt.Fprintf(out, "\r%-11s %5.1f%% %d/%d", p.Phase, p.Percentage, p.Current, p.Total)
				if p.Current == p.Total {
					fmt.Fprintln(out)
				}
			}
		}))

		if err := t.programmer(opts...).Write(cmd.Context(), img); err != nil {
			return err
		}

		if writeRun {
			return t.run()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	f := writeCmd.Flags()
	f.StringVar(&writeBase, "base", "0", "load address for raw binary images")
	f.StringVar(&writeEraseMode, "erase-mode", "eager", "erase strategy: eager or on-demand")
	f.BoolVar(&writeVerify, "verify", true, "compare every chunk after programming")
	f.StringVar(&writeCRP, "crp", "none", "CRP level to write: none, 1, 2, 3 or noisp")
	f.StringVar(&writeCRPMax, "crp-max", "none", "highest CRP level allowed")
	f.BoolVar(&writeNoCRP, "no-crp-check", false, "leave the CRP word from the image untouched")
	f.IntVar(&writeChunkSize, "chunk-size", 0, "copy block size; selected automatically when 0")
	f.BoolVarP(&writeRun, "run", "r", false, "reset into the application afterwards")
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture-capable network interfaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := capture.ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no capture devices found (missing privileges?)")
			return nil
		}
		for _, d := range devices {
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
		}
		return nil
	},
}

// Package cmd implements the CLI using the cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var flags struct {
	configFile string
	pcapFile   string
	afpacket   bool
	port       int
	logFile    string
	noBrowser  bool
}

var rootCmd = &cobra.Command{
	Use:   "star-meter [device [log_level]]",
	Short: "Passive combat statistics from local packet capture",
	Long: `star-meter watches the game client's own network traffic, reconstructs
the scene-server message stream and aggregates per-player combat
statistics behind a local HTTP/WebSocket API.

device is a 1-based interface index or the literal "auto"; log_level is
"info" or "debug". Missing or invalid values fall back to an
interactive prompt.`,
	Version:      version,
	Args:         cobra.MaximumNArgs(2),
	RunE:         run,
	SilenceUsage: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "optional config file (yaml)")
	rootCmd.Flags().StringVar(&flags.pcapFile, "pcap-file", "", "replay a capture file instead of sniffing live traffic")
	rootCmd.Flags().BoolVar(&flags.afpacket, "afpacket", false, "capture through an AF_PACKET ring instead of libpcap (Linux only)")
	rootCmd.Flags().IntVar(&flags.port, "port", 8989, "first port tried by the web server")
	rootCmd.Flags().StringVar(&flags.logFile, "log-file", "", "append logs to this rotating file as well as stdout")
	rootCmd.Flags().BoolVar(&flags.noBrowser, "no-browser", false, "do not open the web interface in a browser")

	rootCmd.AddCommand(devicesCmd)
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
)

// isInteractive reports whether stdin is a terminal a user can answer
// prompts on.
func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// chooseDevice resolves the device argument, falling back to an
// interactive prompt and finally to auto-detection.
func chooseDevice(arg string, logger log.Logger) (capture.Device, error) {
	if arg != "" {
		dev, err := capture.ResolveDevice(arg, logger)
		if err == nil {
			return dev, nil
		}
		logger.Warnf("device %q not usable: %v", arg, err)
	}
	if isInteractive() {
		if choice := promptDevice(os.Stdin, os.Stdout, logger); choice != "" {
			dev, err := capture.ResolveDevice(choice, logger)
			if err == nil {
				return dev, nil
			}
			logger.Warnf("device %q not usable: %v", choice, err)
		}
	}
	return capture.ResolveDevice("auto", logger)
}

// promptDevice lists the available devices and reads a selection. An
// empty answer means auto-detection.
func promptDevice(in io.Reader, out io.Writer, logger log.Logger) string {
	devices, err := capture.ListDevices()
	if err != nil {
		logger.Warnf("failed to list devices: %v", err)
		return ""
	}
	fmt.Fprintln(out, "Available capture devices:")
	for _, d := range devices {
		fmt.Fprintf(out, "  %s\n", d)
	}
	fmt.Fprint(out, "Device index [auto]: ")
	return readLine(in)
}

// promptLogLevel reads the desired log level, defaulting to info.
func promptLogLevel(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Log level (info/debug) [info]: ")
	if level := readLine(in); validLogLevel(level) {
		return level
	}
	return "info"
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func readLine(in io.Reader) string {
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line)
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/companion-remote/companion/internal/storage"
)

// DevicesConfig holds the configuration for device registry commands.
type DevicesConfig struct {
	DeviceStore string
}

// formatDuration formats a duration in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// resolveDeviceStore applies the default registry path to an empty flag.
func resolveDeviceStore(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return storage.DefaultPath()
}

func runDevicesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &DevicesConfig{}
	fs.StringVar(&cfg.DeviceStore, "device-store", "", "Path to device registry database (default: ~/.companion-remote/companion.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion devices list [options]\n\nList remote devices that have connected before.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	storePath, err := resolveDeviceStore(cfg.DeviceStore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// No database yet means no devices have ever connected.
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No known devices.")
		return 0
	}

	store, err := storage.New(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device registry: %v\n", err)
		return 1
	}
	defer store.Close()

	devices, err := store.ListDevices()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list devices: %v\n", err)
		return 1
	}

	if len(devices) == 0 {
		fmt.Fprintln(stdout, "No known devices.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tNAME\tPLATFORM\tFIRST SEEN\tLAST SEEN")
	fmt.Fprintln(w, "---------\t----\t--------\t----------\t---------")

	now := time.Now()
	for _, device := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			device.ID,
			device.Name,
			device.Platform,
			formatDuration(now.Sub(device.FirstSeen)),
			formatDuration(now.Sub(device.LastSeen)),
		)
	}
	w.Flush()

	return 0
}

func runDevicesForget(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices forget", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &DevicesConfig{}
	fs.StringVar(&cfg.DeviceStore, "device-store", "", "Path to device registry database (default: ~/.companion-remote/companion.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion devices forget [options] <device-id>\n\nRemove a device from the registry.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: device-id is required")
		fs.Usage()
		return 1
	}
	deviceID := fs.Arg(0)

	storePath, err := resolveDeviceStore(cfg.DeviceStore)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintf(stderr, "Error: device %s not found\n", deviceID)
		return 1
	}

	store, err := storage.New(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device registry: %v\n", err)
		return 1
	}
	defer store.Close()

	device, err := store.GetDevice(deviceID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to lookup device: %v\n", err)
		return 1
	}
	if device == nil {
		fmt.Fprintf(stderr, "Error: device %s not found\n", deviceID)
		return 1
	}

	if err := store.DeleteDevice(deviceID); err != nil {
		fmt.Fprintf(stderr, "Error: failed to forget device: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Forgot device: %s (%s)\n", device.ID, device.Name)
	return 0
}

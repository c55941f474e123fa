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

func runSessions(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &DevicesConfig{}
	fs.StringVar(&cfg.DeviceStore, "device-store", "", "Path to device registry database (default: ~/.companion-remote/companion.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion sessions [options]\n\nList past hosting sessions, newest first.\n\nOptions:\n")
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

	// No database yet means nothing has ever been hosted.
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No recorded sessions.")
		return 0
	}

	store, err := storage.New(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device registry: %v\n", err)
		return 1
	}
	defer store.Close()

	sessions, err := store.ListSessions()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list sessions: %v\n", err)
		return 1
	}

	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No recorded sessions.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tADDRESS\tSTARTED\tENDED")
	fmt.Fprintln(w, "-------\t-------\t-------\t-----")

	now := time.Now()
	for _, s := range sessions {
		ended := "active"
		if s.EndedAt != nil {
			ended = formatDuration(now.Sub(*s.EndedAt))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID,
			s.Address,
			formatDuration(now.Sub(s.StartedAt)),
			ended,
		)
	}
	w.Flush()

	return 0
}

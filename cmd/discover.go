package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/companion-remote/companion/internal/mdns"
)

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse for hosts")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion discover [options]\n\nBrowse the local network for advertised hosts.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	fmt.Fprintf(stdout, "Browsing for %s hosts (%s)...\n", mdns.ServiceType, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(hosts) == 0 {
		fmt.Fprintln(stdout, "No hosts found. Hosts must run with --mdns to be discoverable.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tSESSION\tVERSION")
	fmt.Fprintln(w, "----\t-------\t-------\t-------")
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\n", h.Name, h.Host, h.Port, h.SessionID, h.Version)
	}
	w.Flush()

	fmt.Fprintln(stdout, "\nJoin with: companion join <session-id> <pin> <address>")
	return 0
}

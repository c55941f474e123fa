package main

import (
	"bufio"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/companion-remote/companion/internal/config"
	"github.com/companion-remote/companion/internal/protocol"
	"github.com/companion-remote/companion/internal/session"
)

const joinPrompt = `Connected. Commands:
  play            Toggle play/pause
  seek <seconds>  Seek to a position
  volume <0-100>  Set volume
  quit            Disconnect and exit
`

func runJoin(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		name     string
		insecure bool
	)
	fs.StringVar(&name, "name", "", "Device name announced to the host (default: hostname)")
	fs.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (self-signed hosts)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion join [options] <session-id> <pin> <address>\n\nJoin a session as a remote control.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 3 {
		fmt.Fprintln(stderr, "Error: session-id, pin, and address are required")
		fs.Usage()
		return 1
	}
	sessionID, pin, address := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	if name == "" {
		name = config.DefaultDeviceName()
	}

	remoteCfg := session.RemoteConfig{
		DeviceName: name,
		Platform:   config.DefaultPlatform(),
		Events: session.Events{
			OnCommand: func(cmd protocol.Command) {
				// Liveness traffic is noise at the prompt.
				if cmd.Type == protocol.CommandPong || cmd.Type == protocol.CommandAck {
					return
				}
				fmt.Fprintf(stdout, "[host] %s %v\n", cmd.Type, cmd.Data)
			},
			OnDeviceConnected: func(d protocol.Device) {
				fmt.Fprintf(stdout, "Connected to %s (%s)\n", d.Name, d.Platform)
			},
			OnDeviceDisconnected: func(d protocol.Device) {
				fmt.Fprintf(stdout, "Disconnected from %s\n", d.Name)
			},
			OnError: func(err error) {
				fmt.Fprintf(stderr, "Session error: %v\n", err)
			},
		},
	}
	if insecure {
		remoteCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	r := session.NewRemote(remoteCfg)
	if err := r.Join(sessionID, pin, address); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer r.Disconnect()

	fmt.Fprint(stdout, joinPrompt)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		cmd, err := parseControlCommand(line)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		r.SendCommand(cmd)
	}

	fmt.Fprintln(stdout, "Disconnecting.")
	return 0
}

// parseControlCommand turns a prompt line into a protocol command.
func parseControlCommand(line string) (protocol.Command, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "play", "pause", "playpause":
		return protocol.NewCommand(protocol.CommandPlayPause, nil), nil
	case "seek":
		if len(fields) < 2 {
			return protocol.Command{}, errors.New("seek requires a position in seconds")
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || secs < 0 {
			return protocol.Command{}, fmt.Errorf("invalid seek position: %s", fields[1])
		}
		return protocol.NewCommand(protocol.CommandSeek, map[string]any{"position": secs}), nil
	case "volume", "vol":
		if len(fields) < 2 {
			return protocol.Command{}, errors.New("volume requires a level 0-100")
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil || level < 0 || level > 100 {
			return protocol.Command{}, fmt.Errorf("invalid volume level: %s", fields[1])
		}
		return protocol.NewCommand(protocol.CommandVolume, map[string]any{"level": float64(level)}), nil
	default:
		return protocol.Command{}, fmt.Errorf("unknown command: %s", fields[0])
	}
}

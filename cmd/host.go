package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/companion-remote/companion/internal/config"
	"github.com/companion-remote/companion/internal/keepawake"
	"github.com/companion-remote/companion/internal/mdns"
	"github.com/companion-remote/companion/internal/protocol"
	"github.com/companion-remote/companion/internal/session"
	"github.com/companion-remote/companion/internal/storage"
	hostTLS "github.com/companion-remote/companion/internal/tls"
)

// HostConfig holds the configuration for the host command after merging
// config file values and CLI flags.
type HostConfig struct {
	ConfigPath  string
	DeviceName  string
	Port        int
	DeviceStore string
	TLS         bool
	TLSCert     string
	TLSKey      string
	Mdns        bool
	QR          bool
	KeepAwake   bool
}

func runHost(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &HostConfig{}
	fs.StringVar(&cfg.ConfigPath, "config", "", "Path to config file (default: ~/.companion-remote/config.toml)")
	fs.StringVar(&cfg.DeviceName, "name", "", "Device name announced to remotes (default: hostname)")
	fs.IntVar(&cfg.Port, "port", 0, "Preferred listen port (default: 48632, ephemeral fallback)")
	fs.StringVar(&cfg.DeviceStore, "device-store", "", "Path to device registry database (default: ~/.companion-remote/companion.db)")
	fs.BoolVar(&cfg.TLS, "tls", false, "Serve wss with a self-signed certificate")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate (default: ~/.companion-remote/certs/host.crt)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key (default: ~/.companion-remote/certs/host.key)")
	fs.BoolVar(&cfg.Mdns, "mdns", false, "Advertise the session via mDNS")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the join credentials as a QR code")
	fs.BoolVar(&cfg.KeepAwake, "keep-awake", false, "Keep this device awake while a remote is connected")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: companion host [options]\n\nHost a session and print its join credentials.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nA remote joins with: companion join <session-id> <pin> <address>\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// First run: materialize a default config file the user can edit later.
	// Failure is not fatal, hosting works without a config file.
	if cfg.ConfigPath == "" {
		writeDefaultConfig(cfg.DeviceName, stderr)
	}

	// Load config file, then let explicit flags win.
	fileCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	applyHostDefaults(cfg, fileCfg)

	// Open the device registry so authenticated remotes are remembered.
	var recorder session.DeviceRecorder
	store, err := storage.New(cfg.DeviceStore)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: device registry unavailable: %v\n", err)
	} else {
		defer store.Close()
		recorder = func(d protocol.Device) {
			now := time.Now()
			if err := store.SaveDevice(&storage.Device{
				ID:        d.ID,
				Name:      d.Name,
				Platform:  d.Platform,
				FirstSeen: now,
				LastSeen:  now,
			}); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to record device: %v\n", err)
			}
		}
	}

	// Keep-awake is opt-in and tracks remote presence: the sleep inhibitor
	// is held only while a remote is connected.
	var awake *keepawake.Manager
	if cfg.KeepAwake {
		awake = keepawake.NewManager(keepawake.NewDefaultAdapter())
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := awake.Close(ctx); err != nil {
				fmt.Fprintf(stderr, "Warning: keep-awake release failed: %v\n", err)
			}
		}()
	}

	hostCfg := session.HostConfig{
		DeviceName:    cfg.DeviceName,
		Platform:      config.DefaultPlatform(),
		PreferredPort: cfg.Port,
		Recorder:      recorder,
		Events: session.Events{
			OnCommand: func(cmd protocol.Command) {
				fmt.Fprintf(stdout, "[command] %s %v\n", cmd.Type, cmd.Data)
			},
			OnDeviceConnected: func(d protocol.Device) {
				fmt.Fprintf(stdout, "Remote connected: %s (%s)\n", d.Name, d.Platform)
				if awake != nil {
					st := awake.Enable(context.Background())
					if st.State == keepawake.StateDegraded {
						fmt.Fprintf(stderr, "Warning: keep-awake degraded (%s): %s\n", st.Reason, st.LastError)
					}
				}
			},
			OnDeviceDisconnected: func(d protocol.Device) {
				fmt.Fprintf(stdout, "Remote disconnected: %s\n", d.Name)
				if awake != nil {
					awake.Disable(context.Background())
				}
			},
			OnError: func(err error) {
				fmt.Fprintf(stderr, "Session error: %v\n", err)
			},
		},
	}

	// TLS is opt-in: generate or load a self-signed certificate and serve wss.
	if cfg.TLS {
		ident, err := hostTLS.Ensure(hostTLS.Options{
			CertPath: cfg.TLSCert,
			KeyPath:  cfg.TLSKey,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		tlsCfg, err := hostTLS.ServerConfig(ident.CertPath, ident.KeyPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		hostCfg.TLSConfig = tlsCfg
		fmt.Fprintf(stdout, "TLS fingerprint: %s\n", ident.Fingerprint)
	}

	h := session.NewHost(hostCfg)
	info, err := h.CreateSession()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer h.Disconnect()

	if store != nil {
		if err := store.RecordSessionStart(info.SessionID, info.Address, time.Now()); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to record session: %v\n", err)
		}
		defer func() {
			if err := store.RecordSessionEnd(info.SessionID, time.Now()); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to record session end: %v\n", err)
			}
		}()
	}

	if cfg.QR {
		DisplayJoinQR(stdout, info, cfg.TLS)
	} else {
		DisplayJoinInfo(stdout, info)
	}

	// mDNS advertisement is opt-in. Discovery only reveals presence and the
	// session ID; the PIN stays on this screen.
	if cfg.Mdns {
		adv := mdns.NewAdvertiser(mdns.Config{
			Port:      portOf(info.Address),
			SessionID: info.SessionID,
			Name:      cfg.DeviceName,
		})
		if err := adv.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "Advertising via mDNS as %s\n", mdns.ServiceType)
			defer adv.Stop()
		}
	}

	// Serve until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(stdout, "Shutting down.")
	return 0
}

// writeDefaultConfig creates ~/.companion-remote/config.toml when none
// exists yet. An existing file is left alone.
func writeDefaultConfig(deviceName string, stderr io.Writer) {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return
	}
	if deviceName == "" {
		deviceName = config.DefaultDeviceName()
	}
	if err := config.WriteDefault(path, deviceName); err != nil {
		fmt.Fprintf(stderr, "Warning: could not write default config: %v\n", err)
	}
}

// applyHostDefaults merges file config and built-in defaults into any host
// flag the user left unset.
func applyHostDefaults(cfg *HostConfig, fileCfg *config.Config) {
	if cfg.DeviceName == "" {
		cfg.DeviceName = fileCfg.DeviceName
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = config.DefaultDeviceName()
	}
	if cfg.Port == 0 {
		cfg.Port = fileCfg.Port
	}
	if cfg.Port == 0 {
		cfg.Port = config.DefaultPort
	}
	if cfg.DeviceStore == "" {
		cfg.DeviceStore = fileCfg.DeviceStore
	}
	if cfg.DeviceStore == "" {
		if path, err := storage.DefaultPath(); err == nil {
			cfg.DeviceStore = path
		}
	}
	if cfg.TLSCert == "" {
		cfg.TLSCert = fileCfg.TLSCert
	}
	if cfg.TLSKey == "" {
		cfg.TLSKey = fileCfg.TLSKey
	}
	if !cfg.Mdns {
		cfg.Mdns = fileCfg.MdnsEnabled
	}
	if !cfg.QR {
		cfg.QR = fileCfg.QR
	}
}

// portOf extracts the port from a host:port address, or 0 when absent.
func portOf(address string) int {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			port := 0
			for _, c := range address[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				port = port*10 + int(c-'0')
			}
			return port
		}
	}
	return 0
}

// DisplayJoinInfo shows the session credentials to the user.
func DisplayJoinInfo(w io.Writer, info session.SessionInfo) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SESSION READY")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Session: %s\n", FormatCodeWithSpaces(info.SessionID))
	fmt.Fprintf(w, "  PIN:     %s\n", FormatCodeWithSpaces(info.PIN))
	fmt.Fprintf(w, "  Address: %s\n", info.Address)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter these in the remote app to connect.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayJoinQR shows the session credentials as a QR code with a
// plain-text fallback. The QR payload uses a URL scheme:
// companion://join?session=<id>&pin=<pin>&addr=<address>
func DisplayJoinQR(w io.Writer, info session.SessionInfo, tlsEnabled bool) {
	payload := fmt.Sprintf("companion://join?session=%s&pin=%s&addr=%s&tls=%t",
		info.SessionID,
		info.PIN,
		url.QueryEscape(info.Address),
		tlsEnabled)

	// Medium error correction keeps the code small enough for a terminal.
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayJoinInfo(w, info)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO CONNECT")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// ToSmallString(false) produces compact half-block output without a border.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  Session: %s\n", FormatCodeWithSpaces(info.SessionID))
	fmt.Fprintf(w, "  PIN:     %s\n", FormatCodeWithSpaces(info.PIN))
	fmt.Fprintf(w, "  Address: %s\n", info.Address)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// FormatCodeWithSpaces adds spaces between characters for readability.
// "123456" -> "1 2 3 4 5 6"
func FormatCodeWithSpaces(code string) string {
	result := ""
	for i, c := range code {
		if i > 0 {
			result += " "
		}
		result += string(c)
	}
	return result
}

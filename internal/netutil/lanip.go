// Package netutil provides LAN address resolution for the session host.
//
// A hosting device needs to tell the user an address other devices on the
// same network can actually reach. Loopback is useless for that, and on
// machines with several interfaces (VPN tunnels, container bridges) the
// first address enumerated is often the wrong one. The heuristic here
// prefers interfaces whose names suggest Wi-Fi or Ethernet, falls back to
// any non-loopback IPv4, and finally to the OS routing table's preferred
// outbound address.
package netutil

import (
	"net"
	"strings"
)

// preferredPrefixes are interface-name prefixes that suggest a real LAN
// link. Covers Linux predictable names (wlp*, enp*, wlan*, eth*), macOS
// (en*), and Windows-style friendly names.
var preferredPrefixes = []string{
	"wlan", "wlp", "wl", // Wi-Fi (Linux)
	"eth", "enp", "eno", "ens", // Ethernet (Linux)
	"en",               // Ethernet/Wi-Fi (macOS)
	"wi-fi", "wifi",    // Windows friendly names
	"ethernet", "lan",  // Windows friendly names
}

// ResolveLANIPv4 returns the first non-loopback IPv4 address on this
// machine, preferring interfaces that look like Wi-Fi or Ethernet links.
// Returns empty string if no usable interface exists.
func ResolveLANIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return PreferredOutboundIP()
	}

	// First pass: interfaces with Wi-Fi/Ethernet-suggestive names.
	if ip := firstIPv4(ifaces, true); ip != "" {
		return ip
	}

	// Second pass: any non-loopback IPv4.
	if ip := firstIPv4(ifaces, false); ip != "" {
		return ip
	}

	// Last resort: ask the routing table which local address it would use.
	return PreferredOutboundIP()
}

// firstIPv4 scans interfaces for a usable IPv4 address.
// When preferredOnly is set, only name-matched interfaces are considered.
func firstIPv4(ifaces []net.Interface, preferredOnly bool) string {
	for _, iface := range ifaces {
		// Skip loopback and down interfaces
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if preferredOnly && !isPreferredName(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			return ip.String()
		}
	}
	return ""
}

// isPreferredName reports whether an interface name suggests a Wi-Fi or
// Ethernet link.
func isPreferredName(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range preferredPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// PreferredOutboundIP returns the machine's preferred outbound IPv4 address.
// It works by dialing a UDP connection to a public IP (no actual traffic
// sent) and checking which local address was selected by the OS routing
// table. Returns empty string if detection fails.
func PreferredOutboundIP() string {
	// Dial UDP to a public IP. No actual packets are sent for UDP;
	// this just lets us query which local interface the OS would use.
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	if localAddr.IP.IsLoopback() {
		return ""
	}
	return localAddr.IP.String()
}

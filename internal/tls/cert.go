// Package tls manages the self-signed server identity the host uses to
// serve wss. Certificates live under ~/.companion-remote/certs and are
// regenerated automatically once expired. The SHA-256 fingerprint is shown
// to the user so a remote pinning the certificate can verify it out of band.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/companion-remote/companion/internal/netutil"
)

// Options controls where the server identity lives and what it covers.
// The zero value is fully usable.
type Options struct {
	// CertPath and KeyPath override the default locations under
	// ~/.companion-remote/certs.
	CertPath string
	KeyPath  string

	// SANs lists the hostnames and IPs the certificate is valid for.
	// If empty, it covers localhost, 127.0.0.1, and the current LAN IP —
	// the addresses a session is actually advertised on.
	SANs []string

	// Lifetime is the validity period of a newly generated certificate.
	// Default: one year.
	Lifetime time.Duration
}

// Identity describes the certificate the host will serve with.
type Identity struct {
	CertPath string
	KeyPath  string

	// Fingerprint is the SHA-256 of the DER certificate, as colon-separated
	// uppercase hex. This is what the user reads to a remote for pinning.
	Fingerprint string

	// Expires is the certificate's NotAfter instant.
	Expires time.Time

	// Generated is true when Ensure created a fresh certificate rather
	// than reusing one from disk.
	Generated bool
}

// Ensure returns a usable server identity: an existing, still-valid
// certificate from disk, or a freshly generated one when none exists, the
// key is missing, or the certificate has expired.
func Ensure(opts Options) (*Identity, error) {
	certPath, keyPath, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}

	if isFile(certPath) && isFile(keyPath) {
		ident, err := inspect(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("existing certificate is unusable: %w", err)
		}
		if time.Now().Before(ident.Expires) {
			return ident, nil
		}
		// Expired on disk: fall through and replace it.
	}

	return generate(certPath, keyPath, opts)
}

// ServerConfig builds the tls.Config the session server serves wss with.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Fingerprint renders a certificate's SHA-256 as colon-separated uppercase
// hex, e.g. "AA:BB:CC:...". 32 bytes, 95 characters.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)

	var b strings.Builder
	for i, by := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", by)
	}
	return b.String()
}

func resolvePaths(opts Options) (string, string, error) {
	certPath, keyPath := opts.CertPath, opts.KeyPath
	if certPath != "" && keyPath != "" {
		return certPath, keyPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	certDir := filepath.Join(home, ".companion-remote", "certs")
	if certPath == "" {
		certPath = filepath.Join(certDir, "host.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(certDir, "host.key")
	}
	return certPath, keyPath, nil
}

// inspect loads a certificate pair from disk and summarizes it.
func inspect(certPath, keyPath string) (*Identity, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, err
	}

	return &Identity{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		Expires:     cert.NotAfter,
	}, nil
}

// generate writes a fresh self-signed ECDSA P-256 certificate and key.
func generate(certPath, keyPath string, opts Options) (*Identity, error) {
	sans := opts.SANs
	if len(sans) == 0 {
		sans = []string{"localhost", "127.0.0.1"}
		if lan := netutil.ResolveLANIPv4(); lan != "" {
			sans = append(sans, lan)
		}
	}
	lifetime := opts.Lifetime
	if lifetime == 0 {
		lifetime = 365 * 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"companion"},
			CommonName:   "companion host",
		},
		NotBefore:             now,
		NotAfter:              now.Add(lifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, san := range sans {
		if ip := net.ParseIP(san); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, san)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	return &Identity{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		Expires:     cert.NotAfter,
		Generated:   true,
	}, nil
}

// isFile reports whether path exists and is a regular file.
func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

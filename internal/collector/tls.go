package collector

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
)

// HTTPSPort is the port of the googleapis.com endpoints.
const HTTPSPort = "443"

// TLSInfo describes a completed TLS handshake.
type TLSInfo struct {
	// RemoteAddr is the address the connection was made to.
	RemoteAddr string

	// Version is the negotiated protocol, e.g. "TLS 1.3".
	Version string

	// Subject and Issuer are the leaf certificate's names.
	Subject string
	Issuer  string

	// NotAfter is the leaf certificate's expiry (RFC 3339).
	NotAfter string

	// DNSNames are the leaf certificate's DNS SANs.
	DNSNames []string
}

// TLSProber performs a TLS handshake with ip using serverName for SNI and
// certificate verification.
type TLSProber interface {
	Probe(ctx context.Context, ip, serverName string) (TLSInfo, error)
}

// NetTLSProber is the default TLSProber. It dials port 443 with the system
// root pool.
type NetTLSProber struct {
	timeout time.Duration
}

// NewNetTLSProber creates a NetTLSProber. A non-positive timeout uses
// DefaultLookupTimeout.
func NewNetTLSProber(timeout time.Duration) *NetTLSProber {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &NetTLSProber{timeout: timeout}
}

// Probe implements TLSProber.
func (p *NetTLSProber) Probe(ctx context.Context, ip, serverName string) (TLSInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, HTTPSPort))
	if err != nil {
		return TLSInfo{}, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return TLSInfo{}, fmt.Errorf("unexpected connection type %T", conn)
	}
	info := ConnectionInfo(tlsConn.ConnectionState())
	info.RemoteAddr = conn.RemoteAddr().String()
	return info, nil
}

// ConnectionInfo extracts the negotiated version and the leaf certificate
// names from a connection state.
func ConnectionInfo(state tls.ConnectionState) TLSInfo {
	var info TLSInfo

	switch state.Version {
	case tls.VersionTLS10:
		info.Version = "TLS 1.0"
	case tls.VersionTLS11:
		info.Version = "TLS 1.1"
	case tls.VersionTLS12:
		info.Version = "TLS 1.2"
	case tls.VersionTLS13:
		info.Version = "TLS 1.3"
	default:
		info.Version = "Unknown"
	}

	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		info.Subject = cert.Subject.String()
		info.Issuer = cert.Issuer.String()
		info.NotAfter = cert.NotAfter.UTC().Format(time.RFC3339)
		info.DNSNames = cert.DNSNames
	}
	return info
}

// TLSCollector connects to the API target and reports which address
// answered and which certificate it presented.
type TLSCollector struct {
	prober TLSProber
}

// NewTLSCollector creates a TLSCollector.
func NewTLSCollector(p TLSProber) *TLSCollector {
	return &TLSCollector{prober: p}
}

// Collect performs the handshake. The observation confirms reachability
// and the presented certificate only; the address was already classified
// by the route and hop evidence, so the status is always UNKNOWN.
// A verification failure (for example an intercepting proxy) is reported
// as a failed handshake.
func (c *TLSCollector) Collect(ctx context.Context, targetIP, serverName string) model.Observation {
	obs := model.Observation{Source: "tls", Status: model.PathUnknown}

	info, err := c.prober.Probe(ctx, targetIP, serverName)
	if err != nil {
		obs.Summary = fmt.Sprintf("unreachable: TLS handshake with %s failed: %v", net.JoinHostPort(targetIP, HTTPSPort), err)
		return obs
	}

	remote := info.RemoteAddr
	if remote == "" {
		remote = net.JoinHostPort(targetIP, HTTPSPort)
	}

	obs.Summary = fmt.Sprintf("reachable: %s handshake with %s as %s", info.Version, remote, serverName)
	obs.Details = []string{
		"subject: " + info.Subject,
		"issuer: " + info.Issuer,
		"expires: " + info.NotAfter,
	}
	if len(info.DNSNames) > 0 {
		obs.Details = append(obs.Details, "names: "+strings.Join(info.DNSNames, ", "))
	}
	return obs
}

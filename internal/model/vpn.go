package model

import "fmt"

// VPNMechanism identifies a tunnel technology.
type VPNMechanism int

const (
	// VPNNone means no tunnel mechanism was found.
	VPNNone VPNMechanism = iota
	// VPNIPsec is a strongSwan/libreswan IPsec tunnel (Cloud VPN's protocol).
	VPNIPsec
	// VPNOpenVPN is an OpenVPN service.
	VPNOpenVPN
	// VPNWireGuard is a WireGuard interface.
	VPNWireGuard
)

// String returns the report name of the mechanism.
func (m VPNMechanism) String() string {
	switch m {
	case VPNNone:
		return "NONE"
	case VPNIPsec:
		return "IPSEC"
	case VPNOpenVPN:
		return "OPENVPN"
	case VPNWireGuard:
		return "WIREGUARD"
	default:
		return "NONE"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m VPNMechanism) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *VPNMechanism) UnmarshalText(text []byte) error {
	switch string(text) {
	case "NONE":
		*m = VPNNone
	case "IPSEC":
		*m = VPNIPsec
	case "OPENVPN":
		*m = VPNOpenVPN
	case "WIREGUARD":
		*m = VPNWireGuard
	default:
		return fmt.Errorf("unknown VPN mechanism %q", string(text))
	}
	return nil
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/nao1215/privpath/internal/model"
)

// ErrNoNetworkStack is returned by CheckNetworkStack when the host has no
// usable network interface. It is the only condition that aborts a run.
var ErrNoNetworkStack = errors.New("no usable network interface")

// InterfaceInfo is the subset of interface state the collectors use.
type InterfaceInfo struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []string
}

// InterfaceLister lists the host's network interfaces.
type InterfaceLister func() ([]InterfaceInfo, error)

// SystemInterfaces lists interfaces with net.Interfaces.
func SystemInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	infos := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, a := range addrs {
				info.Addrs = append(info.Addrs, a.String())
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CheckNetworkStack fails with ErrNoNetworkStack when no non-loopback
// interface is up.
func CheckNetworkStack(list InterfaceLister) error {
	ifaces, err := list()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoNetworkStack, err)
	}
	for _, iface := range ifaces {
		if iface.Up && !iface.Loopback {
			return nil
		}
	}
	return ErrNoNetworkStack
}

// TunnelInterfaces returns the up interfaces whose name denotes a tunnel.
func TunnelInterfaces(ifaces []InterfaceInfo) []InterfaceInfo {
	var tunnels []InterfaceInfo
	for _, iface := range ifaces {
		if iface.Up && IsTunnelInterface(iface.Name) {
			tunnels = append(tunnels, iface)
		}
	}
	return tunnels
}

// InterfaceCollector reports tunnel interfaces as an observation.
type InterfaceCollector struct {
	list InterfaceLister
}

// NewInterfaceCollector creates an InterfaceCollector. A nil lister uses
// SystemInterfaces.
func NewInterfaceCollector(list InterfaceLister) *InterfaceCollector {
	if list == nil {
		list = SystemInterfaces
	}
	return &InterfaceCollector{list: list}
}

// Collect returns a PRIVATE observation when at least one tunnel interface
// is up and UNKNOWN otherwise.
func (c *InterfaceCollector) Collect(_ context.Context) model.Observation {
	obs := model.Observation{
		Source: "interfaces",
		Status: model.PathUnknown,
	}

	ifaces, err := c.list()
	if err != nil {
		obs.Summary = "could not list interfaces: " + err.Error()
		return obs
	}

	tunnels := TunnelInterfaces(ifaces)
	if len(tunnels) == 0 {
		obs.Summary = fmt.Sprintf("no tunnel interface among %d interfaces", len(ifaces))
		return obs
	}

	obs.Status = model.PathPrivate
	obs.Summary = fmt.Sprintf("%d tunnel interface(s) up", len(tunnels))
	for _, t := range tunnels {
		detail := t.Name
		if len(t.Addrs) > 0 {
			detail += " " + strings.Join(t.Addrs, ", ")
		}
		obs.Details = append(obs.Details, detail)
	}
	return obs
}

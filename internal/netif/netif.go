// Package netif inspects host network interfaces for Dante use: listing
// them, checking one is usable for browsing, checking two audio networks
// are isolated and suggesting a role for each interface.
package netif

import (
	"fmt"
	"net"
	"strings"
)

// Interface describes a non-loopback host interface.
type Interface struct {
	Name    string `json:"name"`
	Index   int    `json:"index"`
	MAC     string `json:"mac"`
	IP      string `json:"ip,omitempty"`
	Netmask string `json:"netmask,omitempty"`
	IsUp    bool   `json:"is_up"`
	HasIP   bool   `json:"has_ip"`
}

// Role names assigned by SuggestRoles.
const (
	RoleManagement = "Management"
	RoleDomain1    = "Dante Domain 1"
	RoleDomain2    = "Dante Domain 2"
)

// RequiredInterfaces is the number of usable interfaces needed to give
// management and both audio domains their own network.
const RequiredInterfaces = 3

// Assignment pairs a usable interface with a suggested role.
type Assignment struct {
	Interface Interface `json:"interface"`
	Role      string    `json:"role"`
}

// Lister enumerates host interfaces. The zero value reads the host.
type Lister struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// List returns the host's non-loopback interfaces.
func List() ([]Interface, error) {
	return Lister{}.List()
}

// List returns the non-loopback interfaces in system order.
func (l Lister) List() ([]Interface, error) {
	ifacesFn, addrsFn := l.interfaces, l.addrs
	if ifacesFn == nil {
		ifacesFn = net.Interfaces
	}
	if addrsFn == nil {
		addrsFn = func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() }
	}

	ifaces, err := ifacesFn()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		info := Interface{
			Name:  iface.Name,
			Index: iface.Index,
			MAC:   iface.HardwareAddr.String(),
			IsUp:  iface.Flags&net.FlagUp != 0,
		}

		// Address errors leave the interface listed without an IP
		if addrs, err := addrsFn(iface); err == nil {
			for _, addr := range addrs {
				ipNet, ok := addr.(*net.IPNet)
				if !ok || ipNet.IP.To4() == nil {
					continue
				}
				info.IP = ipNet.IP.To4().String()
				info.Netmask = net.IP(ipNet.Mask).String()
				info.HasIP = true
				break
			}
		}

		result = append(result, info)
	}
	return result, nil
}

// Find returns the named interface from list, or nil.
func Find(list []Interface, name string) *Interface {
	for i := range list {
		if list[i].Name == name {
			return &list[i]
		}
	}
	return nil
}

// Validate checks that the named interface can carry Dante discovery.
func Validate(list []Interface, name string) error {
	info := Find(list, name)
	if info == nil {
		return fmt.Errorf("interface %s not found", name)
	}
	if !info.IsUp {
		return fmt.Errorf("interface %s is down", name)
	}
	if !info.HasIP {
		return fmt.Errorf("interface %s has no IP address", name)
	}
	if info.MAC == "" {
		return fmt.Errorf("interface %s has no MAC address", name)
	}
	return nil
}

// SameSegment reports whether two IPv4 addresses share a /24.
func SameSegment(a, b string) bool {
	return segment(a) != "" && segment(a) == segment(b)
}

func segment(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ""
	}
	return strings.Join(parts[:3], ".")
}

// CheckIsolation returns an error when the two audio interfaces share a
// network segment.
func CheckIsolation(a, b Interface) error {
	if SameSegment(a.IP, b.IP) {
		return fmt.Errorf("%s (%s) and %s (%s) are on the same network segment", a.Name, a.IP, b.Name, b.IP)
	}
	return nil
}

// Usable returns the interfaces that are up and have an IPv4 address.
func Usable(list []Interface) []Interface {
	var usable []Interface
	for _, info := range list {
		if info.IsUp && info.HasIP {
			usable = append(usable, info)
		}
	}
	return usable
}

// SuggestRoles assigns management and the two audio domains to the first
// usable interfaces in order. Fewer than RequiredInterfaces usable
// interfaces yields a partial assignment.
func SuggestRoles(list []Interface) []Assignment {
	roles := []string{RoleManagement, RoleDomain1, RoleDomain2}
	var out []Assignment
	for i, info := range Usable(list) {
		if i >= len(roles) {
			break
		}
		out = append(out, Assignment{Interface: info, Role: roles[i]})
	}
	return out
}

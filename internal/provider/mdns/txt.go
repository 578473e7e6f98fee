package mdns

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/dantescan/internal/provider"
)

// TXT record keys published by devices
const (
	keyRouterInfo    = "router_info"
	keyRouterVersion = "router_vers"
	keyManufacturer  = "mf"
	keyModel         = "model"
	keyDefaultName   = "default_name"
	keyChannelID     = "id"
)

// parseTXT converts "key=value" TXT strings into a map. Keys without a value
// map to the empty string and surrounding quotes are removed from values.
func parseTXT(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, rec := range records {
		parts := strings.SplitN(rec, "=", 2)
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key == "" {
			continue
		}
		if len(parts) == 2 {
			txt[key] = strings.Trim(strings.TrimSpace(parts[1]), `"`)
		} else {
			txt[key] = ""
		}
	}
	return txt
}

// parseVersion parses "major.minor.bugfix". It returns nil when the text is
// not a well-formed version triple.
func parseVersion(s string) *provider.Version {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return nil
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return nil
	}
	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil
	}
	bugfix, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return nil
	}
	return &provider.Version{Major: uint8(major), Minor: uint8(minor), Bugfix: uint16(bugfix)}
}

// deviceFromEntry builds a RawDevice from a browse entry. It returns false
// when the entry carries no instance name.
func deviceFromEntry(entry *zeroconf.ServiceEntry) (provider.RawDevice, bool) {
	if entry == nil || entry.Instance == "" {
		return provider.RawDevice{}, false
	}
	txt := parseTXT(entry.Text)
	return provider.RawDevice{
		Name:           entry.Instance,
		RouterInfo:     txt[keyRouterInfo],
		ManufacturerID: txt[keyManufacturer],
		ModelID:        txt[keyModel],
		DefaultName:    txt[keyDefaultName],
		RouterVersion:  parseVersion(txt[keyRouterVersion]),
	}, true
}

// mergeDevice overlays the fields known in update onto current.
func mergeDevice(current, update provider.RawDevice) provider.RawDevice {
	if update.RouterInfo != "" {
		current.RouterInfo = update.RouterInfo
	}
	if update.ManufacturerID != "" {
		current.ManufacturerID = update.ManufacturerID
	}
	if update.ModelID != "" {
		current.ModelID = update.ModelID
	}
	if update.DefaultName != "" {
		current.DefaultName = update.DefaultName
	}
	if update.RouterVersion != nil {
		current.RouterVersion = update.RouterVersion
	}
	current.Name = update.Name
	return current
}

// firstIPv4 returns the first IPv4 address of entry, or nil.
func firstIPv4(entry *zeroconf.ServiceEntry) net.IP {
	for _, ip := range entry.AddrIPv4 {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}

// ipToUint32 converts an IPv4 address to host order, most significant
// byte first.
func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// splitChannelInstance splits a "<channel>@<device>" instance name.
func splitChannelInstance(instance string) (channel, device string, ok bool) {
	i := strings.LastIndex(instance, "@")
	if i <= 0 || i == len(instance)-1 {
		return "", "", false
	}
	return instance[:i], instance[i+1:], true
}

// sameDevice reports whether a and b carry the same announcement data.
func sameDevice(a, b provider.RawDevice) bool {
	if a.Name != b.Name || a.RouterInfo != b.RouterInfo || a.ManufacturerID != b.ManufacturerID ||
		a.ModelID != b.ModelID || a.DefaultName != b.DefaultName {
		return false
	}
	if a.RouterVersion == nil || b.RouterVersion == nil {
		return a.RouterVersion == b.RouterVersion
	}
	return *a.RouterVersion == *b.RouterVersion
}

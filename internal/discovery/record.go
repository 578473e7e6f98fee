package discovery

import (
	"fmt"
)

// MaxDevices is the capacity of a snapshot. Providers reporting more devices
// are truncated.
const MaxDevices = 32

// Sentinel field values used when the provider cannot supply a field.
const (
	UnresolvedIP       = "0.0.0.0"
	UnknownModel       = "Unknown Model"
	UnknownVersion     = "Unknown"
	ProductVersionNA   = "N/A"
	LinkSpeedUnknown   = -1
	unknownDeviceNameF = "Unknown Device %d"
)

// Record is one discovered device.
type Record struct {
	// ID is the 1-based discovery sequence number within one snapshot
	// generation. It is not a durable identifier.
	ID int `json:"id"`

	// Name is the advertised device name
	Name string `json:"name"`

	// Model is the best available model description
	Model string `json:"model"`

	// FirmwareVersion is the router version as major.minor.bugfix
	FirmwareVersion string `json:"firmware_version"`

	// ProductVersion is always "N/A"; kept for consumers of the record schema
	ProductVersion string `json:"product_version"`

	// IPAddress is the resolved dotted-quad address, or "0.0.0.0"
	IPAddress string `json:"ip_address"`

	// LinkSpeed is always -1 (not determined)
	LinkSpeed int `json:"link_speed"`

	// SecondaryIP, SecondarySpeed and MACAddress are never resolved
	SecondaryIP    string `json:"secondary_ip"`
	SecondarySpeed int    `json:"secondary_speed"`
	MACAddress     string `json:"mac_address"`

	// Valid marks a populated record
	Valid bool `json:"is_valid"`
}

// String returns a human-readable string representation of the record
func (r Record) String() string {
	return fmt.Sprintf("Device %d %s (%s) at %s, firmware %s", r.ID, r.Name, r.Model, r.IPAddress, r.FirmwareVersion)
}

// Resolved reports whether the record carries a real address.
func (r Record) Resolved() bool {
	return r.IPAddress != "" && r.IPAddress != UnresolvedIP
}

// FormatIPv4 renders a host-order IPv4 address as a dotted quad, most
// significant byte first.
func FormatIPv4(host uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		(host>>24)&0xFF,
		(host>>16)&0xFF,
		(host>>8)&0xFF,
		host&0xFF,
	)
}

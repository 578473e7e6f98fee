// Package provider declares the narrow interface the discovery core consumes
// from a network audio device provider.
//
// A provider owns the actual discovery transport. The core never talks to the
// network directly; it creates browse sessions, opens transient device
// connections to resolve addresses and pumps the provider's event loop through
// the interfaces declared here.
//
// # Implementations
//
//   - mdns: a DNS-SD implementation built on github.com/grandcat/zeroconf
//   - providertest: a scriptable in-memory fake for tests
//
// # Errors
//
// Provider failures are reported as *Error values carrying the operation name
// and a numeric code. CodeDone is the "operation complete" code which callers
// pumping the event loop treat as success.
package provider

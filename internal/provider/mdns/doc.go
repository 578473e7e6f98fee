// Package mdns implements provider.Environment on top of multicast DNS
// service discovery.
//
// Devices announce themselves with DNS-SD records:
//
//	_netaudio-arc._udp   routing control, one instance per device
//	_netaudio-cmc._udp   control and monitoring, one instance per device
//	_netaudio-chan._udp  one instance per transmit channel ("<channel>@<device>")
//
// A browse session subscribes to the services matching its categories and
// merges the announcements by instance name. Browsing runs in rounds of
// BrowseRound; a device that stops answering is dropped at the end of the
// first round it misses, together with its cached address. Browse results arrive on
// background goroutines but are only handed to the session callback from
// inside ProcessEvents, so callers see the same cooperative dispatch model
// as any other provider.
//
// Device connections resolve addresses from the browse cache when possible
// and fall back to a one-shot lookup otherwise.
//
// Usage:
//
//	env, err := mdns.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer env.Close()
package mdns

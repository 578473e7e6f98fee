// Package discovery implements the device discovery and address resolution
// core: a browse-session scanner, a snapshot builder, a bounded address
// resolver and the cooperative driver a host application polls.
//
// # Data Flow
//
//  1. Driver.PumpEvents lets the provider process events for about 500ms
//  2. The provider reports a network change to the Scanner's callback
//  3. The callback stores the device list and flags a pending rebuild
//  4. The pump drains the flag and the Builder rebuilds the whole table,
//     resolving each device address through the Resolver
//  5. The new Snapshot replaces the old one with a single pointer swap
//  6. The host reads Driver.Count and Driver.Record
//
// # Usage Example
//
//	table := discovery.NewTable()
//	resolver := discovery.NewResolver(env, nil)
//	scanner := discovery.NewScanner(env, discovery.NewBuilder(resolver, nil), table, nil)
//	driver := discovery.NewDriver(scanner, env.Runtime(), table, nil)
//
//	if err := scanner.Start(ctx); err != nil {
//	    return err
//	}
//	defer scanner.Stop()
//
//	driver.PumpEvents(ctx)
//	for i := 0; i < driver.Count(); i++ {
//	    rec, _ := driver.Record(i)
//	    fmt.Println(rec)
//	}
//
// # Resolution Budget
//
// Each device is polled every 100ms for at most 30 polls. Unresolved devices
// stay in the snapshot with the address "0.0.0.0". Devices are resolved one
// at a time unless Builder.Concurrency is raised.
//
// # Thread Safety
//
// Start, Stop, PumpEvents and Refresh are meant to be called from one
// goroutine. Snapshots are immutable and published atomically, so Count,
// Record and Snapshot may be called from any goroutine and never observe a
// partially built table.
package discovery

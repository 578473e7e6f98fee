// Package dante is the host-facing entry point of the discovery subsystem.
//
// A Context owns one provider environment, the local device connection and
// the background scanner with its device table. Host code creates one
// Context and threads it through every call; nothing is process-global, so
// several independent contexts may coexist.
//
// Every fallible call records its failure in a single-slot buffer available
// through LastError. The slot is overwritten by the next failure, so callers
// that need a history must capture it themselves.
//
// Typical use:
//
//	c := dante.New(mdns.Open, nil)
//	if err := c.Init(ctx, "eth0"); err != nil {
//		return err
//	}
//	defer c.Cleanup()
//
//	if err := c.StartScan(ctx); err != nil {
//		return err
//	}
//	for {
//		c.PumpEvents(ctx)
//		for i := 0; i < c.DiscoveredCount(); i++ {
//			rec, _ := c.DeviceInfo(i)
//			fmt.Println(rec)
//		}
//	}
package dante

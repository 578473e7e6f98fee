// Package server exposes the live device table over HTTP and WebSocket.
//
// The server owns the event loop of a dante.Context: a single goroutine
// pumps provider events, serves refresh requests and pushes every new
// snapshot generation to connected WebSocket clients. HTTP handlers only
// read the current snapshot, which is immutable and safe to share.
//
// # Endpoints
//
//	GET  /devices          current snapshot as JSON
//	GET  /devices/{index}  one record, 0-based
//	POST /refresh          rebuild the table now (rate limited)
//	GET  /ws               snapshot stream
//	GET  /metrics          Prometheus metrics
//	GET  /version          build information
//	GET  /healthz          liveness
//
// # WebSocket Stream
//
// On connect a client receives a "hello" message carrying its id, followed
// by the current snapshot. A "snapshot" message is pushed each time the
// generation changes. Clients are not expected to send anything; pings
// keep idle connections alive.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Host: "127.0.0.1", Port: 8390}, dctx, collector)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT/SIGTERM or a listener error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
package server

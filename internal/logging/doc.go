// Package logging provides structured logging for dantescan.
//
// This package wraps a zap logger with package-level helpers so that every
// component logs the same way without threading a logger through each call.
// Components that accept an explicit *zap.Logger fall back to GetLogger().
//
// # Log Levels
//
//   - Debug: poll attempts, pumped provider codes, raw device metadata
//   - Info: scan lifecycle, snapshot publication, resolved addresses
//   - Warn: truncated device lists, unresolved devices, interface fallbacks
//   - Error: provider failures during session setup
//
// # Configuration
//
// Logging is silent unless a level is passed to Initialize or the
// DANTESCAN_LOG_LEVEL environment variable is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Domain Helpers
//
//	logging.LogDeviceResolved("stagebox-1", "10.0.0.5", 3)
//	logging.LogSnapshotPublished(4, 12, elapsed)
//	logging.LogProviderError("start browse", err)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging

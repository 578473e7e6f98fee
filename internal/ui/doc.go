// Package ui provides terminal output for the dantescan CLI.
//
// Two kinds of output live here. One-shot commands (scan, interfaces,
// local) print through a Printer: a header box, lipgloss tables of devices
// or interfaces, and success or error boxes with troubleshooting tips.
// Multi-step commands report progress through Steps.
//
// The watch command runs WatchModel, a Bubble Tea program that pumps a
// Source on a timer and redraws the device table whenever a new snapshot
// generation is published. Only one pump or refresh is in flight at a
// time, so the Source is never driven concurrently.
//
// # Logging Integration
//
// Zap logging is controlled by the DANTESCAN_LOG_LEVEL environment
// variable. When unset, logging is silent so the styled output is the only
// thing on screen.
package ui

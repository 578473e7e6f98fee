package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/dante"
	"github.com/muurk/dantescan/internal/discovery"
	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/metrics"
	"github.com/muurk/dantescan/internal/netif"
	"github.com/muurk/dantescan/internal/provider/mdns"
	"github.com/muurk/dantescan/internal/reach"
	"github.com/muurk/dantescan/internal/server"
	"github.com/muurk/dantescan/internal/ui"
)

// pumpEvery is how often one-shot commands pump provider events
const pumpEvery = 100 * time.Millisecond

// Scan command flags
var (
	scanWait        int
	scanJSON        bool
	scanPing        bool
	scanRemember    bool
	scanConcurrency int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(interfacesCmd)

	for _, cmd := range []*cobra.Command{rootCmd, scanCmd} {
		cmd.Flags().IntVarP(&scanWait, "wait", "w", 0, "Seconds to collect devices before printing (default from config)")
		cmd.Flags().BoolVar(&scanJSON, "json", false, "Print devices as JSON")
		cmd.Flags().BoolVar(&scanPing, "ping", false, "Check each resolved address with ICMP echo")
		cmd.Flags().BoolVar(&scanRemember, "remember", false, "Record discovered devices in the config file")
		cmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "Devices resolved in parallel (default from config)")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newContext creates a scanner context on the mDNS provider with the
// configured resolve concurrency.
func newContext(observer discovery.Observer) *dante.Context {
	dctx := dante.New(mdns.Open, nil)
	dctx.ResolveConcurrency = registry.Preferences.ResolveConcurrency
	if scanConcurrency > 0 {
		dctx.ResolveConcurrency = scanConcurrency
	}
	dctx.Observer = observer
	return dctx
}

// startScan initialises dctx on the selected interface and starts browsing.
func startScan(ctx context.Context, dctx *dante.Context, onStep ui.StepCallback) error {
	onStep(1, ui.StepRunning, "")
	if err := dctx.Init(ctx, ifaceName); err != nil {
		onStep(1, ui.StepFailed, "")
		return err
	}
	msg := "all interfaces"
	if ifaceName != "" {
		msg = ifaceName
	}
	onStep(1, ui.StepComplete, msg)

	onStep(2, ui.StepRunning, "")
	if err := dctx.StartScan(ctx); err != nil {
		onStep(2, ui.StepFailed, "")
		return err
	}
	onStep(2, ui.StepComplete, "")
	return nil
}

// collect pumps events for wait and then rebuilds the table once more so
// devices that resolved late carry their address.
func collect(ctx context.Context, dctx *dante.Context, wait time.Duration) error {
	ticker := time.NewTicker(pumpEvery)
	defer ticker.Stop()
	deadline := time.After(wait)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return dctx.RefreshScan(ctx)
		case <-ticker.C:
			dctx.PumpEvents(ctx)
		}
	}
}

// scanCmd performs a one-shot scan
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Dante devices on the network",
	Long: `Browse for Dante devices for a few seconds and print what was found.

Each device is listed with its name, model, firmware version and IPv4
address. Devices whose address could not be resolved are shown as 0.0.0.0.`,
	Example: `  # Scan for the configured time (3 seconds by default)
  dantescan scan

  # Scan the Dante primary network for 10 seconds
  dantescan scan --interface eth1 --wait 10

  # Check reachability and remember what was found
  dantescan scan --ping --remember

  # JSON output for scripting
  dantescan scan --json`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	wait := time.Duration(registry.Preferences.ScanWait) * time.Second
	if scanWait > 0 {
		wait = time.Duration(scanWait) * time.Second
	}

	out := cmd.OutOrStdout()
	stepOut := out
	if scanJSON {
		stepOut = io.Discard
	}
	printer := ui.NewPrinter(stepOut)

	iface := ifaceName
	if iface == "" {
		iface = "all"
	}
	printer.PrintHeader("Dante Devices", "dantescan scan", []ui.Param{
		{Key: "Interface", Value: iface},
		{Key: "Wait", Value: wait.String()},
	})

	steps := ui.NewSteps(stepOut, "Open mDNS environment", "Start browsing", "Collect devices", "Check reachability")
	dctx := newContext(nil)
	defer dctx.Cleanup()

	if err := startScan(ctx, dctx, steps.Callback()); err != nil {
		printer.PrintError("Scan failed", err, scanTroubleshooting)
		return err
	}

	steps.Update(3, ui.StepRunning, "")
	if err := collect(ctx, dctx, wait); err != nil && !errors.Is(err, context.Canceled) {
		steps.Update(3, ui.StepFailed, "")
		printer.PrintError("Scan failed", err, scanTroubleshooting)
		return err
	}
	snap := dctx.Snapshot()
	steps.Update(3, ui.StepComplete, fmt.Sprintf("%d devices", snap.Len()))

	records := snap.Records()
	var results map[string]reach.Result
	if scanPing {
		steps.Update(4, ui.StepRunning, "")
		results = reach.NewChecker(nil).Check(ctx, addresses(records))
		steps.Update(4, ui.StepComplete, fmt.Sprintf("%d alive", countAlive(results)))
	} else {
		steps.Update(4, ui.StepSkipped, "")
	}

	if scanRemember {
		if err := remember(records); err != nil {
			return err
		}
	}

	if scanJSON {
		return writeJSON(out, scanReport(snap, results))
	}

	printer.Newline()
	printer.PrintDevices(records, ui.DeviceTableOptions{Nicknames: nicknames(), Reach: results})
	printer.PrintSuccess("Scan complete", []ui.Param{
		{Key: "Devices", Value: strconv.Itoa(len(records))},
		{Key: "Resolved", Value: strconv.Itoa(countResolved(records))},
		{Key: "Duration", Value: steps.Elapsed().Round(time.Millisecond).String()},
	})
	return nil
}

var scanTroubleshooting = []string{
	"Check that the interface is connected to the Dante network",
	"Allow UDP port 5353 (mDNS) through the host firewall",
	"List usable interfaces with: dantescan interfaces",
	"Set DANTESCAN_LOG_LEVEL=debug for provider logs",
}

// deviceReport is one device in JSON scan output
type deviceReport struct {
	discovery.Record
	Nickname string        `json:"nickname,omitempty"`
	Alive    *bool         `json:"alive,omitempty"`
	RTT      time.Duration `json:"rtt_ns,omitempty"`
}

// scanResult is the JSON scan output
type scanResult struct {
	Generation uint64         `json:"generation"`
	Count      int            `json:"count"`
	Devices    []deviceReport `json:"devices"`
}

func scanReport(snap *discovery.Snapshot, results map[string]reach.Result) scanResult {
	records := snap.Records()
	report := scanResult{Generation: snap.Generation, Count: len(records), Devices: make([]deviceReport, len(records))}
	for i, rec := range records {
		d := deviceReport{Record: rec, Nickname: registry.Nickname(rec.Name)}
		if r, ok := results[rec.IPAddress]; ok {
			alive := r.Alive
			d.Alive = &alive
			d.RTT = r.RTT
		}
		report.Devices[i] = d
	}
	return report
}

func addresses(records []discovery.Record) []string {
	ips := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Resolved() {
			ips = append(ips, rec.IPAddress)
		}
	}
	return ips
}

func countResolved(records []discovery.Record) int {
	return len(addresses(records))
}

func countAlive(results map[string]reach.Result) int {
	n := 0
	for _, r := range results {
		if r.Alive {
			n++
		}
	}
	return n
}

// nicknames returns the registry nicknames keyed by device name.
func nicknames() map[string]string {
	out := make(map[string]string)
	for _, name := range registry.DeviceNames() {
		if nick := registry.Nickname(name); nick != "" {
			out[name] = nick
		}
	}
	return out
}

// remember records records in the registry and saves it.
func remember(records []discovery.Record) error {
	for _, rec := range records {
		if registry.Remember(rec.Name, rec.IPAddress, rec.Model, rec.FirmwareVersion) {
			logging.Info("Device address changed", zap.String("device", rec.Name), zap.String("ip", rec.IPAddress))
		}
	}
	if err := saveRegistry(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Watch command flags
var watchInterval time.Duration

// watchCmd shows a live device table
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live table of Dante devices",
	Long: `Browse continuously and redraw the device table whenever it changes.

Press r to force a rebuild of the table and q to quit.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 250*time.Millisecond, "Delay between provider event pumps")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	dctx := newContext(nil)
	defer dctx.Cleanup()

	if err := startScan(ctx, dctx, func(int, ui.StepStatus, string) {}); err != nil {
		ui.NewPrinter(cmd.ErrOrStderr()).PrintError("Watch failed", err, scanTroubleshooting)
		return err
	}

	if !ui.IsTerminal() {
		return watchPlain(ctx, dctx, cmd.OutOrStdout())
	}
	return ui.RunWatch(ctx, dctx, watchInterval, nicknames())
}

// watchPlain prints the device table each time a new generation is
// published, for output that is not a terminal.
func watchPlain(ctx context.Context, dctx *dante.Context, w io.Writer) error {
	printer := ui.NewPrinter(w)
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dctx.PumpEvents(ctx)
			snap := dctx.Snapshot()
			if snap.Generation == last {
				continue
			}
			last = snap.Generation
			printer.Println(fmt.Sprintf("%s  generation %d, %d devices",
				snap.BuiltAt.Format(time.TimeOnly), snap.Generation, snap.Len()))
			printer.PrintDevices(snap.Records(), ui.DeviceTableOptions{Nicknames: nicknames()})
		}
	}
}

// Serve command flags
var (
	serveHost    string
	servePort    int
	serveCert    string
	serveKey     string
	serveRefresh float64
)

// serveCmd runs the HTTP/WebSocket API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the device table over HTTP and WebSocket",
	Long: `Browse continuously and serve the device table.

Endpoints:
  GET  /devices          current device table
  GET  /devices/{index}  one device by 0-based index
  POST /refresh          rebuild the table (rate limited)
  GET  /ws               WebSocket stream of table updates
  GET  /metrics          Prometheus metrics
  GET  /version          build information
  GET  /healthz          liveness`,
	Example: `  # Serve on the configured address (127.0.0.1:8390 by default)
  dantescan serve

  # Serve on all interfaces with TLS
  dantescan serve --host 0.0.0.0 --port 8443 --cert cert.pem --key key.pem`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "Path to TLS private key file")
	serveCmd.Flags().Float64Var(&serveRefresh, "refresh-rate", server.DefaultRefreshRate, "Allowed POST /refresh calls per second")
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveCert == "") != (serveKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	host, port, err := listenAddr()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	collector := metrics.New()
	dctx := newContext(collector)
	defer dctx.Cleanup()

	if err := startScan(ctx, dctx, func(int, ui.StepStatus, string) {}); err != nil {
		return err
	}

	srv, err := server.New(&server.Config{
		Host:         host,
		Port:         port,
		CertPath:     serveCert,
		KeyPath:      serveKey,
		RefreshRate:  serveRefresh,
		RefreshBurst: server.DefaultRefreshBurst,
	}, dctx, collector)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving Dante devices on %s\n", net.JoinHostPort(host, strconv.Itoa(port)))
	return srv.Start()
}

// listenAddr merges the serve flags over the configured listen address.
func listenAddr() (string, int, error) {
	host, portStr, err := net.SplitHostPort(registry.Preferences.ListenAddr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen_addr %q: %w", registry.Preferences.ListenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen_addr port %q: %w", portStr, err)
	}
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	return host, port, nil
}

// localCmd reports the Dante device running on this host
var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Show the Dante device running on this host",
	Long: `Connect to the Dante device hosted by this machine (for example a
virtual soundcard) and print its name and transmit channels.`,
	RunE: runLocal,
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	printer := ui.NewPrinter(cmd.OutOrStdout())
	dctx := newContext(nil)
	defer dctx.Cleanup()

	if err := dctx.Init(ctx, ifaceName); err != nil {
		printer.PrintError("Local device", err, scanTroubleshooting)
		return err
	}
	if err := dctx.ConnectLocalDevice(ctx); err != nil {
		printer.PrintError("Local device", err, []string{
			"Check that Dante Virtual Soundcard or Dante Via is running",
			"Check that it is bound to an interface with an IPv4 address",
		})
		return err
	}

	name, err := dctx.DeviceName()
	if err != nil {
		return err
	}
	tx, err := dctx.TxChannelCount()
	if err != nil {
		return err
	}
	rx, err := dctx.RxChannelCount()
	if err != nil {
		return err
	}

	details := []ui.Param{
		{Key: "Name", Value: name},
		{Key: "TX channels", Value: strconv.Itoa(tx)},
		{Key: "RX channels", Value: strconv.Itoa(rx)},
	}
	for i := 0; i < tx; i++ {
		ch, err := dctx.TxChannelName(i)
		if err != nil {
			return err
		}
		details = append(details, ui.Param{Key: fmt.Sprintf("TX %d", i+1), Value: ch})
	}
	printer.PrintSuccess("Local device connected", details)
	return nil
}

// interfacesCmd lists host interfaces
var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List network interfaces usable for discovery",
	Long: `List host network interfaces with their addresses and a suggested
role: a management network and up to two Dante domains.

Warns when two of the suggested interfaces share a /24 segment.`,
	RunE: runInterfaces,
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	list, err := netif.List()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	roles := netif.SuggestRoles(list)
	printer.PrintInterfaces(list, roles)

	if ifaceName != "" {
		if err := netif.Validate(list, ifaceName); err != nil {
			printer.PrintWarning(err.Error())
		}
	}
	if len(roles) < netif.RequiredInterfaces {
		printer.PrintWarning(fmt.Sprintf("%d usable interfaces found, %d needed for separate management and Dante domains",
			len(roles), netif.RequiredInterfaces))
	}
	for i := 0; i < len(roles); i++ {
		for j := i + 1; j < len(roles); j++ {
			if err := netif.CheckIsolation(roles[i].Interface, roles[j].Interface); err != nil {
				printer.PrintWarning(err.Error())
			}
		}
	}
	return nil
}

package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

// Builder turns the raw device list reported by a browse session into a
// Snapshot, resolving each device address along the way.
type Builder struct {
	resolver *Resolver
	logger   *zap.Logger

	// Concurrency bounds how many addresses are resolved at once.
	// 1 (the default) resolves devices one after another in provider order.
	Concurrency int
}

// NewBuilder creates a builder that resolves addresses with resolver.
func NewBuilder(resolver *Resolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = logging.Named("builder")
	}
	return &Builder{
		resolver:    resolver,
		logger:      logger,
		Concurrency: 1,
	}
}

// Build produces a snapshot from raw, in provider order, truncated to
// MaxDevices. A device whose address cannot be resolved is still included
// with IPAddress set to UnresolvedIP. Build never fails.
func (b *Builder) Build(ctx context.Context, raw []provider.RawDevice) *Snapshot {
	start := time.Now()

	if len(raw) > MaxDevices {
		b.logger.Warn("Provider reported more devices than the snapshot holds, truncating",
			zap.Int("reported", len(raw)),
			zap.Int("capacity", MaxDevices),
		)
		raw = raw[:MaxDevices]
	}

	records := make([]Record, len(raw))
	for i, d := range raw {
		records[i] = NewRecord(i+1, d)
	}

	b.resolveAll(ctx, records)

	b.logger.Debug("Snapshot built",
		zap.Int("devices", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return newSnapshot(records)
}

// resolveAll resolves every record by its display name, so a nameless
// device is looked up under its synthesized "Unknown Device N" name.
func (b *Builder) resolveAll(ctx context.Context, records []Record) {
	if b.resolver == nil {
		return
	}

	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}

	if limit == 1 {
		for i := range records {
			records[i].IPAddress = b.resolver.Resolve(ctx, records[i].Name).IP
		}
		return
	}

	// Each goroutine writes only its own slot, so order is preserved.
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range records {
		g.Go(func() error {
			records[i].IPAddress = b.resolver.Resolve(ctx, records[i].Name).IP
			return nil
		})
	}
	_ = g.Wait()
}

// NewRecord fills every metadata field of a record from a raw device. The
// address is left as UnresolvedIP for the caller to resolve.
func NewRecord(id int, d provider.RawDevice) Record {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf(unknownDeviceNameF, id)
	}

	firmware := UnknownVersion
	if d.RouterVersion != nil {
		firmware = d.RouterVersion.String()
	}

	return Record{
		ID:              id,
		Name:            name,
		Model:           ResolveModel(d),
		FirmwareVersion: firmware,
		ProductVersion:  ProductVersionNA,
		IPAddress:       UnresolvedIP,
		LinkSpeed:       LinkSpeedUnknown,
		SecondaryIP:     UnresolvedIP,
		SecondarySpeed:  LinkSpeedUnknown,
		Valid:           true,
	}
}

// ResolveModel picks the richest model description: router info, then the
// manufacturer and model identifiers joined by a dash, then the default
// name, then UnknownModel.
func ResolveModel(d provider.RawDevice) string {
	if s := strings.TrimSpace(d.RouterInfo); s != "" {
		return s
	}
	if d.ManufacturerID != "" && d.ModelID != "" {
		return d.ManufacturerID + "-" + d.ModelID
	}
	if d.DefaultName != "" {
		return d.DefaultName
	}
	return UnknownModel
}

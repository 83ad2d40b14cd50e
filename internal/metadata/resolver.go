package metadata

import (
	"context"
	"log/slog"

	"mediasort/internal/config"
	"mediasort/internal/logging"
	"mediasort/internal/media"
)

// Source labels recorded on resolved metadata.
const (
	SourceFilename = "filename"
	SourceNone     = "none"
)

// Resolver merges the reader chain into one Metadata value per file.
type Resolver struct {
	readers  []Reader
	fallback Reader
	devices  *DeviceMap
	logger   *slog.Logger
}

// NewResolver builds a resolver over readers in priority order. fallback
// supplies only the capture date and may be nil.
func NewResolver(readers []Reader, fallback Reader, devices *DeviceMap, logger *slog.Logger) *Resolver {
	if devices == nil {
		devices = DefaultDeviceMap()
	}
	return &Resolver{
		readers:  readers,
		fallback: fallback,
		devices:  devices,
		logger:   logging.NewComponentLogger(logger, "metadata"),
	}
}

// NewResolverFromConfig wires the embedded readers, the optional external
// tools, the date fallback and the device map described by cfg.
func NewResolverFromConfig(cfg *config.Config, logger *slog.Logger) (*Resolver, error) {
	devices, err := LoadDeviceMap(cfg.DeviceMapPath())
	if err != nil {
		return nil, err
	}
	readers := []Reader{EXIFReader{}, MP4Reader{}}
	if cfg.Tools.UseFFprobe {
		readers = append(readers, NewFFprobeReader(cfg.Tools.FFprobeBinary, cfg.FFprobeTimeout()))
	}
	if cfg.Tools.UseExiftool {
		readers = append(readers, NewExiftoolReader(cfg.Tools.ExiftoolBinary, cfg.ExiftoolTimeout()))
	}
	var fallback Reader
	if cfg.Organize.DateFallback != config.DateFallbackNone {
		fallback = FilesystemDate{Policy: cfg.Organize.DateFallback}
	}
	return NewResolver(readers, fallback, devices, logger), nil
}

// Devices exposes the loaded device map.
func (r *Resolver) Devices() *DeviceMap { return r.devices }

// Resolve never fails. Each field takes the first non-empty value in reader
// order; readers after the point where every field is known are skipped.
func (r *Resolver) Resolve(ctx context.Context, path string, kind media.Kind) Metadata {
	var md Metadata
	for _, reader := range r.readers {
		if complete(md, kind) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if !reader.Supports(kind) {
			continue
		}
		fields, err := reader.Read(ctx, path)
		if err != nil {
			r.logger.Debug("metadata reader failed",
				logging.String("reader", reader.Name()),
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
			continue
		}
		merge(&md, fields, reader.Name())
	}

	if md.Device != "" {
		md.Device = r.devices.Canonical(md.Device)
	}
	if name, override, ok := r.devices.FromFilename(path); ok && (override || md.Device == "") {
		md.Device = name
		md.DeviceSource = SourceFilename
	}

	if md.CaptureTime.IsZero() && r.fallback != nil && r.fallback.Supports(kind) {
		fields, err := r.fallback.Read(ctx, path)
		if err != nil {
			r.logger.Debug("date fallback failed",
				logging.String("reader", r.fallback.Name()),
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
		} else if !fields.CaptureTime.IsZero() {
			md.CaptureTime = fields.CaptureTime
			md.DateSource = r.fallback.Name()
		}
	}
	if md.DateSource == "" {
		md.DateSource = SourceNone
	}
	if md.DeviceSource == "" {
		md.DeviceSource = SourceNone
	}
	return md
}

func merge(md *Metadata, fields Fields, source string) {
	if md.CaptureTime.IsZero() && !fields.CaptureTime.IsZero() {
		md.CaptureTime = fields.CaptureTime
		md.DateSource = source
	}
	if md.Device == "" {
		if device := normalizeDevice(fields.Device); device != "" {
			md.Device = device
			md.DeviceSource = source
		}
	}
	if md.Projection == "" && fields.Projection != "" {
		md.Projection = fields.Projection
	}
}

// complete reports whether no later reader can add anything. Projection is
// only sought for video.
func complete(md Metadata, kind media.Kind) bool {
	if md.CaptureTime.IsZero() || md.Device == "" {
		return false
	}
	return !kind.IsVideo() || md.Projection != ""
}

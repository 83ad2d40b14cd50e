package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExtensions()
	c.normalizeOrganize()
	c.normalizeTools()
	c.normalizeLabels()
	c.normalizePanorama()
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if dir, ok := stateDirFromEnv(); ok {
		c.Paths.StateDir = dir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DeviceMap, err = expandPath(strings.TrimSpace(c.Paths.DeviceMap)); err != nil {
		return fmt.Errorf("paths.device_map: %w", err)
	}
	if c.Paths.LedgerFile, err = expandPath(strings.TrimSpace(c.Paths.LedgerFile)); err != nil {
		return fmt.Errorf("paths.ledger_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeExtensions() {
	c.Extensions.Image = NormalizeExtensions(c.Extensions.Image)
	c.Extensions.Video = NormalizeExtensions(c.Extensions.Video)
	c.Extensions.Audio = NormalizeExtensions(c.Extensions.Audio)
	c.Extensions.LeaveInPlace = NormalizeExtensions(c.Extensions.LeaveInPlace)
	c.Extensions.LeaveInPlaceSuffixes = NormalizeExtensions(c.Extensions.LeaveInPlaceSuffixes)
}

func (c *Config) normalizeOrganize() {
	c.Organize.DateFallback = strings.ToLower(strings.TrimSpace(c.Organize.DateFallback))
	if c.Organize.DateFallback == "" {
		c.Organize.DateFallback = defaultDateFallback
	}
	c.Organize.DuplicateStrategy = strings.ToLower(strings.TrimSpace(c.Organize.DuplicateStrategy))
	if c.Organize.DuplicateStrategy == "" {
		c.Organize.DuplicateStrategy = defaultDuplicateStrategy
	}
	c.Organize.IdenticalCheck = strings.ToLower(strings.TrimSpace(c.Organize.IdenticalCheck))
	if c.Organize.IdenticalCheck == "" {
		c.Organize.IdenticalCheck = defaultIdenticalCheck
	}
}

func (c *Config) normalizeTools() {
	c.Tools.ExiftoolBinary = strings.TrimSpace(c.Tools.ExiftoolBinary)
	if c.Tools.ExiftoolBinary == "" {
		c.Tools.ExiftoolBinary = defaultExiftoolBinary
	}
	if c.Tools.ExiftoolTimeout <= 0 {
		c.Tools.ExiftoolTimeout = defaultExiftoolTimeout
	}
	c.Tools.FFprobeBinary = strings.TrimSpace(c.Tools.FFprobeBinary)
	if c.Tools.FFprobeBinary == "" {
		c.Tools.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Tools.FFprobeTimeout <= 0 {
		c.Tools.FFprobeTimeout = defaultFFprobeTimeout
	}
}

func (c *Config) normalizeLabels() {
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Labels.DateLayout, defaultDateLayout)
	fill(&c.Labels.Undated, defaultUndatedLabel)
	fill(&c.Labels.UnknownDevice, defaultUnknownDevice)
	fill(&c.Labels.Image, defaultImageLabel)
	fill(&c.Labels.Video, defaultVideoLabel)
	fill(&c.Labels.Panoramic, defaultPanoramaLabel)
	fill(&c.Labels.Audio, defaultAudioLabel)
	fill(&c.Labels.Other, defaultOtherLabel)
}

func (c *Config) normalizePanorama() {
	c.Panorama.Extensions = NormalizeExtensions(c.Panorama.Extensions)
	c.Panorama.FilenameMarkers = normalizeMarkers(c.Panorama.FilenameMarkers)
	c.Panorama.DeviceMarkers = normalizeMarkers(c.Panorama.DeviceMarkers)
	c.Panorama.Projections = normalizeMarkers(c.Panorama.Projections)
}

func (c *Config) normalizeDaemon() error {
	if c.Daemon.IntervalSeconds <= 0 {
		c.Daemon.IntervalSeconds = defaultDaemonInterval
	}
	if c.Daemon.IntervalSeconds < minDaemonInterval {
		c.Daemon.IntervalSeconds = minDaemonInterval
	}
	if c.Daemon.WatchDebounceMillis <= 0 {
		c.Daemon.WatchDebounceMillis = defaultWatchDebounceMS
	}
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if c.Daemon.APIBind == "" {
		c.Daemon.APIBind = defaultAPIBind
	}
	roots := make([]string, 0, len(c.Daemon.MountRoots))
	for _, root := range c.Daemon.MountRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("daemon.mount_roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.Daemon.MountRoots = roots
	c.Ingest.StagingDir = strings.TrimSpace(c.Ingest.StagingDir)
	if c.Ingest.StagingDir == "" {
		c.Ingest.StagingDir = defaultIngestStagingDir
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeExtensions lowercases, dot-prefixes and de-duplicates extensions
// while keeping their first-seen order.
func NormalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func normalizeMarkers(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

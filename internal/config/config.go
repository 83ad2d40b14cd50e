package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediasort/internal/faults"
)

//go:embed sample_config.toml
var sampleConfig string

// StateDirEnv names the environment variable that selects the directory
// holding the configuration file, ledger, device map and lock file.
const StateDirEnv = "CONFIG_DIR"

// Paths contains the directory layout.
type Paths struct {
	SourceDir  string `toml:"source_dir"`
	OutputDir  string `toml:"output_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	DeviceMap  string `toml:"device_map"`
	LedgerFile string `toml:"ledger_file"`
}

// Extensions lists the recognised file extensions per media kind.
type Extensions struct {
	Image        []string `toml:"image"`
	Video        []string `toml:"video"`
	Audio        []string `toml:"audio"`
	LeaveInPlace []string `toml:"leave_in_place"`
	// LeaveInPlaceSuffixes holds compound suffixes such as ".fg.op".
	LeaveInPlaceSuffixes []string `toml:"leave_in_place_suffixes"`
}

// Organize controls planning and execution policy.
type Organize struct {
	RelatedSameStem   bool   `toml:"related_same_stem"`
	RelatedPrefix     bool   `toml:"related_prefix"`
	DateFallback      string `toml:"date_fallback"`
	MoveFiles         bool   `toml:"move_files"`
	DuplicateStrategy string `toml:"duplicate_strategy"`
	IdenticalCheck    string `toml:"identical_check"`
	DeleteEmptyDirs   bool   `toml:"delete_empty_dirs"`
	DeviceFolders     bool   `toml:"device_folders"`
}

// Tools configures the external metadata readers.
type Tools struct {
	UseExiftool     bool   `toml:"use_exiftool"`
	ExiftoolBinary  string `toml:"exiftool_binary"`
	ExiftoolTimeout int    `toml:"exiftool_timeout"`
	UseFFprobe      bool   `toml:"use_ffprobe"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
	FFprobeTimeout  int    `toml:"ffprobe_timeout"`
}

// Labels holds the fixed folder names used in the destination tree.
type Labels struct {
	DateLayout    string `toml:"date_layout"`
	Undated       string `toml:"undated"`
	UnknownDevice string `toml:"unknown_device"`
	Image         string `toml:"image"`
	Video         string `toml:"video"`
	Panoramic     string `toml:"panoramic"`
	Audio         string `toml:"audio"`
	Other         string `toml:"other"`
}

// Panorama configures the default 360 video predicate.
type Panorama struct {
	Extensions      []string `toml:"extensions"`
	FilenameMarkers []string `toml:"filename_markers"`
	DeviceMarkers   []string `toml:"device_markers"`
	Projections     []string `toml:"projections"`
}

// Daemon contains the background loop schedule and triggers.
type Daemon struct {
	IntervalSeconds     int      `toml:"interval_seconds"`
	Watch               bool     `toml:"watch"`
	WatchDebounceMillis int      `toml:"watch_debounce_ms"`
	RemovableMedia      bool     `toml:"removable_media"`
	MountRoots          []string `toml:"mount_roots"`
	APIEnabled          bool     `toml:"api_enabled"`
	APIBind             string   `toml:"api_bind"`
}

// Ingest configures copying from removable media into the source tree.
type Ingest struct {
	Enabled    bool   `toml:"enabled"`
	StagingDir string `toml:"staging_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediasort.
//
// Configuration sections by subsystem:
//   - Paths: source, output and state directories
//   - Extensions: media kind classification sets
//   - Organize: grouping, date fallback and collision policy
//   - Tools: exiftool and ffprobe readers
//   - Labels: destination folder names
//   - Panorama: 360 video detection markers
//   - Daemon: cycle interval and triggers
//   - Ingest: removable media copy
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Extensions Extensions `toml:"extensions"`
	Organize   Organize   `toml:"organize"`
	Tools      Tools      `toml:"tools"`
	Labels     Labels     `toml:"labels"`
	Panorama   Panorama   `toml:"panorama"`
	Daemon     Daemon     `toml:"daemon"`
	Ingest     Ingest     `toml:"ingest"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	if dir, ok := stateDirFromEnv(); ok {
		return expandPath(filepath.Join(dir, "config.toml"))
	}
	return expandPath("~/.config/mediasort/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Validation failures wrap faults.ErrConfigInvalid.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, faults.Wrap(faults.ErrConfigInvalid, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, faults.Wrap(faults.ErrConfigInvalid, "config", "normalize", "", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediasort.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The output
// directory is created on a best-effort basis so the daemon can start while
// a NAS volume is still mounting.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// OutputRoot returns the destination root. An empty output_dir organizes in
// place under the source root.
func (c *Config) OutputRoot() string {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return c.Paths.SourceDir
	}
	return c.Paths.OutputDir
}

// LedgerPath returns the append-only ledger journal location.
func (c *Config) LedgerPath() string {
	if strings.TrimSpace(c.Paths.LedgerFile) != "" {
		return c.Paths.LedgerFile
	}
	return filepath.Join(c.Paths.StateDir, "ledger.jsonl")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mediasort.lock")
}

// DeviceMapPath returns the device-suffix mapping document location, or an
// empty string when none is configured and the default file is absent.
func (c *Config) DeviceMapPath() string {
	if strings.TrimSpace(c.Paths.DeviceMap) != "" {
		return c.Paths.DeviceMap
	}
	for _, name := range []string{"device_suffixes.json", "device_suffixes.yaml", "device_suffixes.yml"} {
		candidate := filepath.Join(c.Paths.StateDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// IngestStagingDir returns the directory inside the source tree that
// receives files copied from removable media.
func (c *Config) IngestStagingDir() string {
	dir := strings.TrimSpace(c.Ingest.StagingDir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Paths.SourceDir, dir)
}

// ExiftoolTimeout returns the per-invocation exiftool timeout.
func (c *Config) ExiftoolTimeout() time.Duration {
	return time.Duration(c.Tools.ExiftoolTimeout) * time.Second
}

// FFprobeTimeout returns the per-invocation ffprobe timeout.
func (c *Config) FFprobeTimeout() time.Duration {
	return time.Duration(c.Tools.FFprobeTimeout) * time.Second
}

// DaemonInterval returns the wait between daemon cycles.
func (c *Config) DaemonInterval() time.Duration {
	return time.Duration(c.Daemon.IntervalSeconds) * time.Second
}

// WatchDebounce returns the quiet period applied to filesystem watch events.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Daemon.WatchDebounceMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func stateDirFromEnv() (string, bool) {
	value, ok := os.LookupEnv(StateDirEnv)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

const (
	defaultStateDir          = "~/.local/share/mediasort"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultDateFallback      = DateFallbackMtime
	defaultDuplicateStrategy = DuplicateRename
	defaultIdenticalCheck    = IdenticalHash
	defaultExiftoolBinary    = "exiftool"
	defaultExiftoolTimeout   = 10
	defaultFFprobeBinary     = "ffprobe"
	defaultFFprobeTimeout    = 15
	defaultDaemonInterval    = 60
	minDaemonInterval        = 15
	defaultWatchDebounceMS   = 3000
	defaultAPIBind           = "127.0.0.1:7490"
	defaultIngestStagingDir  = "_ingest"

	defaultDateLayout    = "2006-01-02"
	defaultUndatedLabel  = "无日期"
	defaultUnknownDevice = "未知设备"
	defaultImageLabel    = "图片"
	defaultVideoLabel    = "视频"
	defaultPanoramaLabel = "全景视频"
	defaultAudioLabel    = "音频"
	defaultOtherLabel    = "其他文件"
)

// Accepted values for organize.date_fallback.
const (
	DateFallbackMtime = "mtime"
	DateFallbackCtime = "ctime"
	DateFallbackAtime = "atime"
	DateFallbackBirth = "birth"
	DateFallbackNone  = "none"
)

// Accepted values for organize.duplicate_strategy.
const (
	DuplicateRename    = "rename"
	DuplicateOverwrite = "overwrite"
	DuplicateSkip      = "skip"
)

// Accepted values for organize.identical_check.
const (
	IdenticalHash  = "hash"
	IdenticalMtime = "mtime"
)

var (
	defaultImageExtensions = []string{
		".jpg", ".jpeg", ".png", ".heic", ".heif", ".gif", ".bmp", ".webp",
		".raw", ".cr2", ".cr3", ".nef", ".arw", ".dng",
	}
	defaultVideoExtensions = []string{
		".mp4", ".mov", ".mkv", ".avi", ".wmv", ".webm", ".m4v", ".3gp",
		".mpg", ".mpeg", ".mts", ".360", ".insv", ".lrf", ".osv",
	}
	defaultAudioExtensions = []string{
		".mp3", ".m4a", ".wav", ".aac", ".flac", ".ogg", ".wma",
	}
	defaultLeaveInPlace         = []string{".op", ".ed", ".lrprev", ".lock"}
	defaultLeaveInPlaceSuffixes = []string{".fg.op", ".fg.ed"}

	defaultPanoramaExtensions = []string{".360", ".insv", ".osv"}
	defaultPanoramaFilename   = []string{"360", "panoram", "theta", "insta360"}
	defaultPanoramaDevices    = []string{"360", "theta", "insta360"}
	defaultPanoramaProjection = []string{"equirectangular"}

	defaultMountRoots = []string{"/media"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Extensions: Extensions{
			Image:                cloneStrings(defaultImageExtensions),
			Video:                cloneStrings(defaultVideoExtensions),
			Audio:                cloneStrings(defaultAudioExtensions),
			LeaveInPlace:         cloneStrings(defaultLeaveInPlace),
			LeaveInPlaceSuffixes: cloneStrings(defaultLeaveInPlaceSuffixes),
		},
		Organize: Organize{
			RelatedSameStem:   true,
			DateFallback:      defaultDateFallback,
			MoveFiles:         true,
			DuplicateStrategy: defaultDuplicateStrategy,
			IdenticalCheck:    defaultIdenticalCheck,
			DeviceFolders:     true,
		},
		Tools: Tools{
			UseExiftool:     true,
			ExiftoolBinary:  defaultExiftoolBinary,
			ExiftoolTimeout: defaultExiftoolTimeout,
			UseFFprobe:      true,
			FFprobeBinary:   defaultFFprobeBinary,
			FFprobeTimeout:  defaultFFprobeTimeout,
		},
		Labels: Labels{
			DateLayout:    defaultDateLayout,
			Undated:       defaultUndatedLabel,
			UnknownDevice: defaultUnknownDevice,
			Image:         defaultImageLabel,
			Video:         defaultVideoLabel,
			Panoramic:     defaultPanoramaLabel,
			Audio:         defaultAudioLabel,
			Other:         defaultOtherLabel,
		},
		Panorama: Panorama{
			Extensions:      cloneStrings(defaultPanoramaExtensions),
			FilenameMarkers: cloneStrings(defaultPanoramaFilename),
			DeviceMarkers:   cloneStrings(defaultPanoramaDevices),
			Projections:     cloneStrings(defaultPanoramaProjection),
		},
		Daemon: Daemon{
			IntervalSeconds:     defaultDaemonInterval,
			Watch:               true,
			WatchDebounceMillis: defaultWatchDebounceMS,
			MountRoots:          cloneStrings(defaultMountRoots),
			APIBind:             defaultAPIBind,
		},
		Ingest: Ingest{
			StagingDir: defaultIngestStagingDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

package metadata_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/logging"
	"mediasort/internal/media"
	"mediasort/internal/metadata"
	"mediasort/internal/testsupport"
)

func TestEXIFReaderReadsDateAndDevice(t *testing.T) {
	taken := time.Date(2023, 5, 1, 10, 30, 0, 0, time.Local)
	path := filepath.Join(t.TempDir(), "IMG_0001.jpg")
	testsupport.WriteContent(t, path, testsupport.EXIFJPEG(taken, "Canon", "Canon EOS R5"))

	fields, err := metadata.EXIFReader{}.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !fields.CaptureTime.Equal(taken) {
		t.Fatalf("capture time = %v, want %v", fields.CaptureTime, taken)
	}
	if fields.Device != "Canon EOS R5" {
		t.Fatalf("device = %q, want %q", fields.Device, "Canon EOS R5")
	}
}

func TestEXIFReaderRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	testsupport.WriteContent(t, path, []byte("not a jpeg"))

	_, err := metadata.EXIFReader{}.Read(context.Background(), path)
	if !errors.Is(err, faults.ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
	}
}

func TestMP4ReaderReadsMovieHeader(t *testing.T) {
	created := time.Date(2022, 12, 24, 18, 5, 9, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteContent(t, path, testsupport.MP4(created, "Apple", "iPhone 14"))

	fields, err := metadata.MP4Reader{}.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !fields.CaptureTime.Equal(created) {
		t.Fatalf("capture time = %v, want %v", fields.CaptureTime, created)
	}
	if fields.CaptureTime.Location() != time.Local {
		t.Fatalf("capture time not in local zone: %v", fields.CaptureTime.Location())
	}
	if fields.Device != "Apple iPhone 14" {
		t.Fatalf("device = %q", fields.Device)
	}
}

type stubReader struct {
	name   string
	kinds  []media.Kind
	fields metadata.Fields
	err    error
	calls  int
}

func (s *stubReader) Name() string { return s.name }

func (s *stubReader) Supports(kind media.Kind) bool {
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *stubReader) Read(context.Context, string) (metadata.Fields, error) {
	s.calls++
	return s.fields, s.err
}

func TestResolverMergesFieldsIndependently(t *testing.T) {
	taken := time.Date(2021, 7, 4, 9, 0, 0, 0, time.Local)
	first := &stubReader{name: "first", kinds: []media.Kind{media.KindImage}, fields: metadata.Fields{CaptureTime: taken}}
	failing := &stubReader{name: "failing", kinds: []media.Kind{media.KindImage}, err: errors.New("boom")}
	second := &stubReader{name: "second", kinds: []media.Kind{media.KindImage}, fields: metadata.Fields{
		CaptureTime: taken.Add(time.Hour),
		Device:      "  Sony   ILCE-7M3 ",
	}}
	unused := &stubReader{name: "unused", kinds: []media.Kind{media.KindImage}, fields: metadata.Fields{Device: "Other"}}

	resolver := metadata.NewResolver([]metadata.Reader{first, failing, second, unused}, nil, nil, logging.NewNop())
	md := resolver.Resolve(context.Background(), "/photos/a.jpg", media.KindImage)

	if !md.CaptureTime.Equal(taken) || md.DateSource != "first" {
		t.Fatalf("date = %v from %q", md.CaptureTime, md.DateSource)
	}
	if md.Device != "Sony ILCE-7M3" || md.DeviceSource != "second" {
		t.Fatalf("device = %q from %q", md.Device, md.DeviceSource)
	}
	if unused.calls != 0 {
		t.Fatalf("reader after completion was called %d times", unused.calls)
	}
}

func TestResolverSkipsUnsupportedReaders(t *testing.T) {
	video := &stubReader{name: "video", kinds: []media.Kind{media.KindVideo}, fields: metadata.Fields{Device: "GoPro"}}
	resolver := metadata.NewResolver([]metadata.Reader{video}, nil, nil, logging.NewNop())

	md := resolver.Resolve(context.Background(), "/music/song.mp3", media.KindAudio)
	if video.calls != 0 {
		t.Fatalf("unsupported reader called")
	}
	if md.Device != "" || md.DeviceSource != metadata.SourceNone {
		t.Fatalf("unexpected device %q (%s)", md.Device, md.DeviceSource)
	}
	if !md.CaptureTime.IsZero() || md.DateSource != metadata.SourceNone {
		t.Fatalf("unexpected date %v (%s)", md.CaptureTime, md.DateSource)
	}
}

func TestResolverFallsBackToModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	testsupport.WriteFile(t, path, 16)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.Local)
	testsupport.SetModTime(t, path, mtime)

	resolver := metadata.NewResolver(
		[]metadata.Reader{metadata.EXIFReader{}},
		metadata.FilesystemDate{Policy: config.DateFallbackMtime},
		nil,
		logging.NewNop(),
	)
	md := resolver.Resolve(context.Background(), path, media.KindImage)
	if !md.CaptureTime.Equal(mtime) {
		t.Fatalf("capture time = %v, want %v", md.CaptureTime, mtime)
	}
	if md.DateSource != "filesystem:mtime" {
		t.Fatalf("date source = %q", md.DateSource)
	}
	if md.Device != "" {
		t.Fatalf("filesystem fallback must not supply a device, got %q", md.Device)
	}
}

func TestResolverFilenamePatterns(t *testing.T) {
	withDevice := &stubReader{name: "meta", kinds: []media.Kind{media.KindVideo, media.KindImage}, fields: metadata.Fields{Device: "FC3582"}}
	resolver := metadata.NewResolver([]metadata.Reader{withDevice}, nil, nil, logging.NewNop())

	md := resolver.Resolve(context.Background(), "/card/DJI_0042.MP4", media.KindVideo)
	if md.Device != metadata.DJIDevice || md.DeviceSource != metadata.SourceFilename {
		t.Fatalf("DJI override not applied: %q (%s)", md.Device, md.DeviceSource)
	}

	md = resolver.Resolve(context.Background(), "/card/flight.LRF", media.KindVideo)
	if md.Device != metadata.DJIDevice {
		t.Fatalf("lrf proxy not mapped to DJI: %q", md.Device)
	}

	md = resolver.Resolve(context.Background(), "/card/IMG_1.jpg", media.KindImage)
	if md.Device != "FC3582" {
		t.Fatalf("metadata device replaced: %q", md.Device)
	}
}

func TestLoadDeviceMapYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_suffixes.yaml")
	doc := `aliases:
  "Canon Canon EOS R5": "Canon EOS R5"
device_patterns:
  Insta360:
    filename_prefixes: ["VID_"]
    extensions: [".insv"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	devices, err := metadata.LoadDeviceMap(path)
	if err != nil {
		t.Fatalf("LoadDeviceMap: %v", err)
	}
	if got := devices.Canonical("canon  canon eos r5"); got != "Canon EOS R5" {
		t.Fatalf("alias = %q", got)
	}
	name, override, ok := devices.FromFilename("/x/VID_20230101.insv")
	if !ok || override || name != "Insta360" {
		t.Fatalf("pattern = %q override=%v ok=%v", name, override, ok)
	}
	if _, _, ok := devices.FromFilename("/x/VID_20230101.mp4"); ok {
		t.Fatalf("extension filter ignored")
	}
	if name, _, ok := devices.FromFilename("/x/DJI_0001.jpg"); !ok || name != metadata.DJIDevice {
		t.Fatalf("built-in DJI rule missing: %q", name)
	}
}

func TestLoadDeviceMapJSONReplacesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_suffixes.json")
	doc := `{"device_patterns": {"大疆": {"filename_prefixes": ["DJI_"], "override": false}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	devices, err := metadata.LoadDeviceMap(path)
	if err != nil {
		t.Fatalf("LoadDeviceMap: %v", err)
	}
	if _, _, ok := devices.FromFilename("/x/flight.lrf"); ok {
		t.Fatalf("builtin lrf rule should be replaced")
	}
	if _, override, ok := devices.FromFilename("/x/DJI_1.mp4"); !ok || override {
		t.Fatalf("replacement rule not applied: ok=%v override=%v", ok, override)
	}
}

func TestLoadDeviceMapInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_suffixes.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := metadata.LoadDeviceMap(path); !errors.Is(err, faults.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestExiftoolReaderParsesStubOutput(t *testing.T) {
	dir := t.TempDir()
	testsupport.StubBinary(t, dir, "exiftool", `cat <<'JSON'
[{"SourceFile":"x","CreateDate":"2019:08:15 12:00:00","Make":"RICOH","Model":"RICOH THETA V","ProjectionType":"equirectangular"}]
JSON`)

	reader := metadata.NewExiftoolReader("exiftool", 5*time.Second)
	if !reader.Available() {
		t.Fatalf("stub exiftool not found on PATH")
	}
	fields, err := reader.Read(context.Background(), filepath.Join(dir, "R0010001.mp4"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := time.Date(2019, 8, 15, 12, 0, 0, 0, time.Local)
	if !fields.CaptureTime.Equal(want) {
		t.Fatalf("capture time = %v", fields.CaptureTime)
	}
	if fields.Device != "RICOH THETA V" || fields.Projection != "equirectangular" {
		t.Fatalf("fields = %+v", fields)
	}
}

func TestExiftoolReaderTimeout(t *testing.T) {
	dir := t.TempDir()
	testsupport.StubBinary(t, dir, "exiftool", "exec sleep 5")

	reader := metadata.NewExiftoolReader("exiftool", 100*time.Millisecond)
	_, err := reader.Read(context.Background(), filepath.Join(dir, "a.jpg"))
	if !errors.Is(err, faults.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExiftoolReaderMissingBinary(t *testing.T) {
	reader := metadata.NewExiftoolReader("mediasort-no-such-exiftool", time.Second)
	if reader.Available() {
		t.Fatalf("unexpected binary")
	}
	_, err := reader.Read(context.Background(), "/tmp/a.jpg")
	if !errors.Is(err, faults.ErrExternalToolUnavailable) {
		t.Fatalf("expected ErrExternalToolUnavailable, got %v", err)
	}
}

func TestNewResolverFromConfigEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	taken := time.Date(2024, 2, 29, 8, 15, 0, 0, time.Local)
	path := filepath.Join(cfg.Paths.SourceDir, "IMG_2.jpg")
	testsupport.WriteContent(t, path, testsupport.EXIFJPEG(taken, "FUJIFILM", "X-T4"))

	resolver, err := metadata.NewResolverFromConfig(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewResolverFromConfig: %v", err)
	}
	md := resolver.Resolve(context.Background(), path, media.KindImage)
	if !md.CaptureTime.Equal(taken) || md.DateSource != "exif" {
		t.Fatalf("date = %v (%s)", md.CaptureTime, md.DateSource)
	}
	if md.Device != "FUJIFILM X-T4" {
		t.Fatalf("device = %q", md.Device)
	}
}

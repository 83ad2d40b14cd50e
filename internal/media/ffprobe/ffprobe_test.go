package ffprobe

import (
	"context"
	"testing"
	"time"
)

const iphoneSample = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "hevc", "tags": {"creation_time": "2023-07-01T04:00:00.000000Z"}},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {
    "filename": "IMG_1234.MOV",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "tags": {
      "creation_time": "2023-07-01T04:00:00.000000Z",
      "com.apple.quicktime.make": "Apple",
      "com.apple.quicktime.model": "iPhone 14 Pro",
      "com.apple.quicktime.creationdate": "2023-07-01T12:00:00+0800"
    }
  }
}`

func TestParseIPhoneTags(t *testing.T) {
	result, err := Parse([]byte(iphoneSample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ts, ok := result.CreationTime()
	if !ok {
		t.Fatal("expected creation time")
	}
	if want := time.Date(2023, 7, 1, 4, 0, 0, 0, time.UTC); !ts.Equal(want) {
		t.Fatalf("unexpected creation time %s", ts)
	}
	if got := result.Device(); got != "Apple iPhone 14 Pro" {
		t.Fatalf("unexpected device %q", got)
	}
	if result.Projection() != "" {
		t.Fatal("expected no projection")
	}
}

func TestDeviceDoesNotRepeatMake(t *testing.T) {
	result := Result{Format: Format{Tags: map[string]string{"make": "Insta360", "model": "Insta360 X3"}}}
	if got := result.Device(); got != "Insta360 X3" {
		t.Fatalf("unexpected device %q", got)
	}
}

func TestProjectionFromSideData(t *testing.T) {
	result := Result{Streams: []Stream{{
		CodecType: "video",
		SideData:  []SideData{{Type: "Spherical Mapping", Projection: "equirectangular"}},
	}}}
	if got := result.Projection(); got != "equirectangular" {
		t.Fatalf("unexpected projection %q", got)
	}
}

func TestCreationTimeIgnoresUnsetDates(t *testing.T) {
	result := Result{Format: Format{Tags: map[string]string{"creation_time": "1970-01-01T00:00:00.000000Z"}}}
	if _, ok := result.CreationTime(); ok {
		t.Fatal("expected epoch creation time to be ignored")
	}
}

func TestInspectMissingBinary(t *testing.T) {
	if _, err := Inspect(context.Background(), "definitely-not-ffprobe", "/tmp/x.mp4"); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

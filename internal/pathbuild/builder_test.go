package pathbuild_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"mediasort/internal/config"
	"mediasort/internal/media"
	"mediasort/internal/pathbuild"
	"mediasort/internal/textutil"
)

func newBuilder(deviceFolders bool) *pathbuild.Builder {
	cfg := config.Default()
	return pathbuild.New("/out", cfg.Labels, deviceFolders)
}

func TestDirLayout(t *testing.T) {
	day := time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)
	builder := newBuilder(true)

	cases := []struct {
		name string
		file media.File
		want string
	}{
		{
			name: "dated image with device",
			file: media.File{Kind: media.KindImage, CaptureTime: day, Device: "Canon EOS R5"},
			want: "/out/2024-01-15/图片/Canon EOS R5",
		},
		{
			name: "undated video without device",
			file: media.File{Kind: media.KindVideo},
			want: "/out/无日期/视频/未知设备",
		},
		{
			name: "panoramic video",
			file: media.File{Kind: media.KindPanoramicVideo, CaptureTime: day, Device: "Insta360 X3"},
			want: "/out/2024-01-15/全景视频/Insta360 X3",
		},
		{
			name: "audio has no device folder",
			file: media.File{Kind: media.KindAudio, CaptureTime: day, Device: "Zoom H1n"},
			want: "/out/2024-01-15/音频",
		},
		{
			name: "device sanitised",
			file: media.File{Kind: media.KindImage, CaptureTime: day, Device: `a/b:c*`},
			want: "/out/2024-01-15/图片/a_b_c_",
		},
		{
			name: "device of dots falls back",
			file: media.File{Kind: media.KindImage, CaptureTime: day, Device: " .. "},
			want: "/out/2024-01-15/图片/未知设备",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tc.want), builder.Dir(tc.file))
		})
	}
}

func TestDeviceFoldersDisabled(t *testing.T) {
	builder := newBuilder(false)
	file := media.File{Kind: media.KindImage, Device: "Canon"}
	assert.Equal(t, "/out/无日期/图片", builder.Dir(file))
}

func TestDestinationSanitisesName(t *testing.T) {
	builder := newBuilder(true)
	file := media.File{Kind: media.KindVideo, Device: "GoPro"}
	assert.Equal(t, "/out/无日期/视频/GoPro/a_b.mp4", builder.Destination(file, "a|b.mp4"))

	long := strings.Repeat("长", 120) + ".jpg"
	name := pathbuild.SanitizeName(long)
	assert.True(t, strings.HasSuffix(name, ".jpg"))
	assert.Equal(t, textutil.MaxSegmentRunes, utf8.RuneCountInString(name))
}

func TestSuffixes(t *testing.T) {
	assert.Equal(t, "IMG_1_2.JPG", pathbuild.WithSuffix("IMG_1.JPG", 2))
	assert.Equal(t, "IMG_1.JPG", pathbuild.WithSuffix("IMG_1.JPG", 0))
	assert.Equal(t, "IMG_1_3.JPG.xmp", pathbuild.AlignedSuffix("IMG_1.JPG.xmp", "IMG_1", 3))
	assert.Equal(t, "img_1_3.xmp", pathbuild.AlignedSuffix("img_1.xmp", "IMG_1", 3))
	assert.Equal(t, "other_3.txt", pathbuild.AlignedSuffix("other.txt", "IMG_1", 3))
}

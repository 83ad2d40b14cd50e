package metadata

import (
	"context"
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"mediasort/internal/faults"
	"mediasort/internal/media"
)

// EXIFReader reads capture time and camera identity from image EXIF data.
type EXIFReader struct{}

func (EXIFReader) Name() string { return "exif" }

func (EXIFReader) Supports(kind media.Kind) bool { return kind == media.KindImage }

func (EXIFReader) Read(_ context.Context, path string) (Fields, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "exif", "open", path, err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "exif", "decode", path, err)
	}

	var fields Fields
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		if ts, ok := parseMetadataDate(exifString(x, name)); ok {
			fields.CaptureTime = ts
			break
		}
	}
	fields.Device = joinDevice(exifString(x, exif.Make), exifString(x, exif.Model))
	if fields.Empty() {
		return fields, faults.Wrap(faults.ErrMetadataUnavailable, "exif", "read", fmt.Sprintf("%s has no date or camera tags", path), nil)
	}
	return fields, nil
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	value, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return value
}

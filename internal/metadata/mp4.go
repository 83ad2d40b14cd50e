package metadata

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"mediasort/internal/faults"
	"mediasort/internal/media"
)

// Seconds between the QuickTime epoch (1904-01-01) and the Unix epoch.
const quickTimeEpoch = 2082844800

// MP4Reader reads the movie header creation time and the QuickTime user data
// make/model atoms of ISO base media files (MP4, MOV, M4A, 3GP, INSV).
type MP4Reader struct{}

func (MP4Reader) Name() string { return "mp4" }

func (MP4Reader) Supports(kind media.Kind) bool {
	return kind.IsVideo() || kind == media.KindAudio
}

func (MP4Reader) Read(_ context.Context, path string) (Fields, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "mp4", "open", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "mp4", "stat", path, err)
	}
	fields, err := readMovieAtoms(file, info.Size())
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "mp4", "parse", path, err)
	}
	if fields.Empty() {
		return fields, faults.Wrap(faults.ErrMetadataUnavailable, "mp4", "read", path+" has no movie header date", nil)
	}
	return fields, nil
}

type atom struct {
	kind    string
	offset  int64
	size    int64
	payload int64
}

var errNotISOBMFF = errors.New("not an ISO base media file")

func readAtomAt(r io.ReaderAt, at, limit int64) (atom, error) {
	if at+8 > limit {
		return atom{}, io.ErrUnexpectedEOF
	}
	var header [16]byte
	if _, err := r.ReadAt(header[:8], at); err != nil {
		return atom{}, err
	}
	size := int64(binary.BigEndian.Uint32(header[0:4]))
	kind := string(header[4:8])
	headerLen := int64(8)
	switch size {
	case 1:
		if _, err := r.ReadAt(header[8:16], at+8); err != nil {
			return atom{}, err
		}
		size = int64(binary.BigEndian.Uint64(header[8:16]))
		headerLen = 16
	case 0:
		size = limit - at
	}
	if size < headerLen || at+size > limit {
		return atom{}, fmt.Errorf("atom %q at %d has invalid size %d", kind, at, size)
	}
	return atom{kind: kind, offset: at, size: size, payload: at + headerLen}, nil
}

// findChild walks the atoms in [start, end) and returns the first of kind.
func findChild(r io.ReaderAt, start, end int64, kind string) (atom, bool) {
	for at := start; at < end; {
		a, err := readAtomAt(r, at, end)
		if err != nil {
			return atom{}, false
		}
		if a.kind == kind {
			return a, true
		}
		at += a.size
	}
	return atom{}, false
}

func readMovieAtoms(r io.ReaderAt, size int64) (Fields, error) {
	first, err := readAtomAt(r, 0, size)
	if err != nil {
		return Fields{}, errNotISOBMFF
	}
	switch first.kind {
	case "ftyp", "moov", "mdat", "free", "skip", "wide", "pnot":
	default:
		return Fields{}, errNotISOBMFF
	}

	moov, ok := findChild(r, 0, size, "moov")
	if !ok {
		return Fields{}, errors.New("moov atom not found")
	}
	moovEnd := moov.offset + moov.size

	var fields Fields
	if mvhd, ok := findChild(r, moov.payload, moovEnd, "mvhd"); ok {
		if ts, ok := readMovieHeaderTime(r, mvhd); ok {
			fields.CaptureTime = ts
		}
	}
	if udta, ok := findChild(r, moov.payload, moovEnd, "udta"); ok {
		udtaEnd := udta.offset + udta.size
		maker := readUserDataString(r, udta.payload, udtaEnd, "\xa9mak")
		model := readUserDataString(r, udta.payload, udtaEnd, "\xa9mod")
		fields.Device = joinDevice(maker, model)
	}
	return fields, nil
}

func readMovieHeaderTime(r io.ReaderAt, mvhd atom) (time.Time, bool) {
	var buf [12]byte
	if _, err := r.ReadAt(buf[:], mvhd.payload); err != nil {
		return time.Time{}, false
	}
	var created uint64
	if buf[0] == 1 {
		created = binary.BigEndian.Uint64(buf[4:12])
	} else {
		created = uint64(binary.BigEndian.Uint32(buf[4:8]))
	}
	// Cameras without a clock write 0 or a 1904 date.
	if created <= quickTimeEpoch {
		return time.Time{}, false
	}
	ts := time.Unix(int64(created-quickTimeEpoch), 0)
	if ts.Year() < 1971 {
		return time.Time{}, false
	}
	return ts.Local(), true
}

// readUserDataString decodes a QuickTime international text atom: a 16-bit
// length, a 16-bit language code, then the text.
func readUserDataString(r io.ReaderAt, start, end int64, kind string) string {
	a, ok := findChild(r, start, end, kind)
	if !ok {
		return ""
	}
	var header [4]byte
	if _, err := r.ReadAt(header[:], a.payload); err != nil {
		return ""
	}
	length := int64(binary.BigEndian.Uint16(header[0:2]))
	if length == 0 || a.payload+4+length > a.offset+a.size {
		return ""
	}
	text := make([]byte, length)
	if _, err := r.ReadAt(text, a.payload+4); err != nil {
		return ""
	}
	return string(text)
}

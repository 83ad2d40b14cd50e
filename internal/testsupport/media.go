package testsupport

import (
	"bytes"
	"encoding/binary"
	"time"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

const (
	tiffASCII = 2
	tiffLong  = 4
)

func asciiEntry(tag uint16, value string) ifdEntry {
	data := append([]byte(value), 0)
	return ifdEntry{tag: tag, typ: tiffASCII, count: uint32(len(data)), data: data}
}

// writeIFD serialises entries at offset base; out-of-line values follow the
// directory. next is the offset of the following IFD.
func writeIFD(buf *bytes.Buffer, base uint32, entries []ifdEntry, next uint32) {
	dirLen := uint32(2 + 12*len(entries) + 4)
	dataOffset := base + dirLen
	var extra bytes.Buffer
	_ = binary.Write(buf, binary.BigEndian, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(buf, binary.BigEndian, e.tag)
		_ = binary.Write(buf, binary.BigEndian, e.typ)
		_ = binary.Write(buf, binary.BigEndian, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf.Write(inline[:])
			continue
		}
		_ = binary.Write(buf, binary.BigEndian, dataOffset+uint32(extra.Len()))
		extra.Write(e.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	_ = binary.Write(buf, binary.BigEndian, next)
	buf.Write(extra.Bytes())
}

func ifdSize(entries []ifdEntry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			n := uint32(len(e.data))
			size += n + n%2
		}
	}
	return size
}

// EXIFJPEG returns a minimal JPEG whose APP1 segment carries Make, Model and
// DateTimeOriginal. Empty values are omitted.
func EXIFJPEG(taken time.Time, maker, model string) []byte {
	var ifd0 []ifdEntry
	if maker != "" {
		ifd0 = append(ifd0, asciiEntry(0x010F, maker))
	}
	if model != "" {
		ifd0 = append(ifd0, asciiEntry(0x0110, model))
	}
	var exifIFD []ifdEntry
	if !taken.IsZero() {
		exifIFD = append(exifIFD, asciiEntry(0x9003, taken.Format("2006:01:02 15:04:05")))
	}

	const ifd0Offset = 8
	var pointer ifdEntry
	if len(exifIFD) > 0 {
		pointer = ifdEntry{tag: 0x8769, typ: tiffLong, count: 1, data: make([]byte, 4)}
		ifd0 = append(ifd0, pointer)
		exifOffset := uint32(ifd0Offset) + ifdSize(ifd0)
		binary.BigEndian.PutUint32(ifd0[len(ifd0)-1].data, exifOffset)
	}

	var tiff bytes.Buffer
	tiff.WriteString("MM")
	_ = binary.Write(&tiff, binary.BigEndian, uint16(42))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(ifd0Offset))
	writeIFD(&tiff, ifd0Offset, ifd0, 0)
	if len(exifIFD) > 0 {
		writeIFD(&tiff, uint32(tiff.Len()), exifIFD, 0)
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

func mp4Atom(kind string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], kind)
	return append(out, body...)
}

func userDataText(kind, value string) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(value)))
	binary.BigEndian.PutUint16(header[2:4], 0x55c4)
	return mp4Atom(kind, header, []byte(value))
}

// MP4 returns a minimal ISO base media file with a version 0 movie header
// carrying created and, when set, QuickTime make/model user data.
func MP4(created time.Time, maker, model string) []byte {
	mvhd := make([]byte, 100)
	if !created.IsZero() {
		binary.BigEndian.PutUint32(mvhd[4:8], uint32(created.Unix()+2082844800))
	}
	children := [][]byte{mp4Atom("mvhd", mvhd)}
	var udta [][]byte
	if maker != "" {
		udta = append(udta, userDataText("\xa9mak", maker))
	}
	if model != "" {
		udta = append(udta, userDataText("\xa9mod", model))
	}
	if len(udta) > 0 {
		children = append(children, mp4Atom("udta", udta...))
	}
	ftyp := mp4Atom("ftyp", []byte("isom"), make([]byte, 4), []byte("isommp42"))
	return append(append(ftyp, mp4Atom("moov", children...)...), mp4Atom("mdat", []byte{0, 0, 0, 0})...)
}

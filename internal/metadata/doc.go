// Package metadata resolves capture time and device for media files.
//
// A Resolver walks an ordered list of Readers (embedded EXIF and MP4 parsers,
// then ffprobe and exiftool when enabled) and keeps the first non-empty value
// for each field. A filesystem timestamp supplies the date when nothing else
// does. Device strings pass through a DeviceMap that applies aliases and
// filename rules such as the DJI shortcut.
package metadata

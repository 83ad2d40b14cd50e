// Package ffprobe runs ffprobe against a container and decodes the few
// fields the metadata resolver needs: creation time, make/model tags and the
// spherical projection of 360 video. Inspect runs the binary; Parse decodes
// output captured elsewhere.
package ffprobe

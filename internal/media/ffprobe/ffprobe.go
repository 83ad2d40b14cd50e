package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Tags      map[string]string `json:"tags"`
	SideData  []SideData        `json:"side_data_list"`
}

// SideData captures stream side data such as spherical mapping.
type SideData struct {
	Type       string `json:"side_data_type"`
	Projection string `json:"projection"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

var creationKeys = []string{
	"com.apple.quicktime.creationdate",
	"creation_time",
	"date",
}

var creationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreationTime returns the earliest plausible creation timestamp from the
// container or stream tags.
func (r Result) CreationTime() (time.Time, bool) {
	sources := []map[string]string{r.Format.Tags}
	for _, stream := range r.Streams {
		sources = append(sources, stream.Tags)
	}
	for _, key := range creationKeys {
		for _, tags := range sources {
			if ts, ok := parseCreation(lookup(tags, key)); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// Device returns "Make Model" from QuickTime or Android tags, or "".
func (r Result) Device() string {
	tags := r.Format.Tags
	maker := firstTag(tags, "com.apple.quicktime.make", "make", "com.android.manufacturer")
	model := firstTag(tags, "com.apple.quicktime.model", "model", "com.android.model")
	switch {
	case maker == "":
		return model
	case model == "":
		return maker
	case strings.HasPrefix(strings.ToLower(model), strings.ToLower(maker)):
		return model
	default:
		return maker + " " + model
	}
}

// Projection returns the spherical projection of the first video stream that
// declares one.
func (r Result) Projection() string {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		for _, side := range stream.SideData {
			if p := strings.TrimSpace(side.Projection); p != "" {
				return p
			}
		}
	}
	return ""
}

func parseCreation(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range creationLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			// Unset QuickTime dates decode to 1904 or 1970.
			if ts.Year() <= 1970 {
				return time.Time{}, false
			}
			return ts, true
		}
	}
	return time.Time{}, false
}

func lookup(tags map[string]string, key string) string {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(lookup(tags, key)); v != "" {
			return v
		}
	}
	return ""
}

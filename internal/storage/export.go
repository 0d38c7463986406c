package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h2non/filetype"
)

// Target selects where a video is exported.
type Target string

const (
	// TargetLocal writes the video into the local export directory.
	TargetLocal Target = "local"
	// TargetS3 uploads the video to the configured bucket.
	TargetS3 Target = "s3"
)

// ErrUnknownTarget is returned for an unsupported export target.
var ErrUnknownTarget = errors.New("storage: unknown export target")

// ErrEmptyVideo is returned when there are no bytes to export.
var ErrEmptyVideo = errors.New("storage: video is empty")

// ParseTarget parses an export target; empty means local.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case "", TargetLocal:
		return TargetLocal, nil
	case TargetS3:
		return TargetS3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
}

// Export is the result of an export.
type Export struct {
	Target Target
	// Location is a file path for local exports and an object URL for S3.
	Location string
	Size     int
}

// ExportVideo writes data to the given target under a generated name.
func ExportVideo(ctx context.Context, s Storage, target Target, contentType string, data []byte) (*Export, error) {
	if len(data) == 0 {
		return nil, ErrEmptyVideo
	}

	name := fmt.Sprintf("veo_%s.%s", time.Now().UTC().Format("20060102T150405"), extension(data))

	var (
		location string
		err      error
	)
	switch target {
	case TargetLocal:
		location, err = s.SaveTemp(ctx, name, bytes.NewReader(data))
	case TargetS3:
		location, err = s.UploadToS3(ctx, "videos/"+name, contentType, bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if err != nil {
		return nil, err
	}

	return &Export{Target: target, Location: location, Size: len(data)}, nil
}

// extension picks a file extension from the content, mp4 when unknown.
func extension(data []byte) string {
	head := data
	if len(head) > 262 {
		head = head[:262]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "mp4"
	}
	return kind.Extension
}

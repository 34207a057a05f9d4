// Package storage fetches source audio by storage path.
package storage

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("audio object not found")
	ErrAccessDenied = errors.New("access denied to audio object")
	ErrTimeout      = errors.New("audio fetch timed out")
)

// ObjectInfo describes one stored audio object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Fetcher reads the full bytes of one object.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Lister enumerates objects under a prefix, recursively.
type Lister interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Store is a source that can both fetch and list.
type Store interface {
	Fetcher
	Lister
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Stats summarises a listing.
func Stats(objects []ObjectInfo) BucketStats {
	var s BucketStats
	for _, o := range objects {
		s.TotalObjects++
		s.TotalSize += o.Size
		if o.LastModified.After(s.LastModified) {
			s.LastModified = o.LastModified
		}
	}
	return s
}

// IsAudio reports whether key names a WAV recording.
func IsAudio(key string) bool {
	return strings.EqualFold(path.Ext(key), ".wav")
}

// AudioKeys filters a listing down to WAV keys, sorted.
func AudioKeys(objects []ObjectInfo) []string {
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if IsAudio(o.Key) {
			keys = append(keys, o.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

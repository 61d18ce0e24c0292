package source

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Known request kinds.
const (
	KindFile = "file"
	KindDir  = "dir"
)

// VodRequest is a parsed on-demand playback request.
//
// The request path layout is /{kind}/{vodId}/{file path...}/{loopCount},
// for example /file/abc123/live/test.h265/3. A loop count of 0 loops forever.
type VodRequest struct {
	Kind      string
	VodID     string
	FilePath  string
	LoopCount int
}

// Extension returns the lower-cased file extension without the dot.
func (r VodRequest) Extension() string {
	return extensionOf(r.FilePath)
}

// ParseVodPath parses a VOD request path.
func ParseVodPath(p string) (VodRequest, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 4 {
		return VodRequest{}, fmt.Errorf("%w: %q needs kind, vod id, file path and loop count", ErrMalformedPath, p)
	}

	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return VodRequest{}, fmt.Errorf("%w: %q contains an empty or relative segment", ErrMalformedPath, p)
		}
	}

	kind := parts[0]
	if kind != KindFile && kind != KindDir {
		return VodRequest{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedPath, kind)
	}

	loopStr := parts[len(parts)-1]
	loops, err := strconv.Atoi(loopStr)
	if err != nil {
		return VodRequest{}, fmt.Errorf("%w: %q: %v", ErrInvalidLoopCount, loopStr, err)
	}
	if loops < 0 {
		return VodRequest{}, fmt.Errorf("%w: %d is negative", ErrInvalidLoopCount, loops)
	}

	return VodRequest{
		Kind:      kind,
		VodID:     parts[1],
		FilePath:  path.Join(parts[2 : len(parts)-1]...),
		LoopCount: loops,
	}, nil
}

func extensionOf(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

package source

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// Constructor builds a frame source for an absolute file path.
type Constructor func(path string) (FrameSource, error)

// Registry maps file extensions to frame source constructors.
//
// A Registry is owned by whichever component composes the server and is
// passed to consumers explicitly. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	root  string
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry resolving relative paths against root.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:  root,
		ctors: make(map[string]Constructor),
	}
}

// DefaultRegistry registers the Annex-B elementary stream source for the
// H.264 and H.265 extensions.
func DefaultRegistry(root string, fps int) *Registry {
	r := NewRegistry(root)
	h264 := func(p string) (FrameSource, error) { return NewAnnexBSource(p, media.CodecH264, fps) }
	h265 := func(p string) (FrameSource, error) { return NewAnnexBSource(p, media.CodecH265, fps) }
	for _, ext := range []string{"h264", "264", "avc"} {
		r.Register(ext, h264)
	}
	for _, ext := range []string{"h265", "265", "hevc"} {
		r.Register(ext, h265)
	}
	return r
}

// Register associates ext (with or without a leading dot, any case) with ctor.
// Registering an extension again replaces the previous constructor.
func (r *Registry) Register(ext string, ctor Constructor) {
	key := strings.ToLower(strings.TrimPrefix(ext, "."))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[key] = ctor

	logrus.WithFields(logrus.Fields{
		"function":  "Registry.Register",
		"extension": key,
	}).Debug("Registered frame source constructor")
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.ctors))
	for ext := range r.ctors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Create builds a source for filePath, which is resolved against the
// registry root unless it is absolute.
func (r *Registry) Create(filePath string) (FrameSource, error) {
	ext := extensionOf(filePath)

	r.mu.RLock()
	ctor, ok := r.ctors[ext]
	root := r.root
	r.mu.RUnlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":  "Registry.Create",
			"path":      filePath,
			"extension": ext,
		}).Error("No frame source registered for extension")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, filepath.FromSlash(filePath))
	}

	src, err := ctor(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame source for %s: %w", abs, err)
	}
	return src, nil
}

// CreateForRequest builds a source for a parsed VOD request.
func (r *Registry) CreateForRequest(req VodRequest) (FrameSource, error) {
	return r.Create(req.FilePath)
}

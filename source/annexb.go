package source

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// DefaultFPS is the picture rate assumed for raw elementary streams, which
// carry no timing of their own.
const DefaultFPS = 25

// NALUnit is one NAL unit located in an Annex-B byte stream.
type NALUnit struct {
	// Data includes the start code.
	Data []byte
	// StartSize is 3 or 4.
	StartSize int
}

// SplitAnnexB locates the NAL units of an Annex-B byte stream. Both 3 and
// 4 byte start codes are recognized. Bytes before the first start code are
// ignored.
func SplitAnnexB(data []byte) []NALUnit {
	type mark struct{ pos, size int }
	var marks []mark

	for i := 0; i+2 < len(data); {
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				if i > 0 && data[i-1] == 0 {
					marks = append(marks, mark{i - 1, 4})
				} else {
					marks = append(marks, mark{i, 3})
				}
				i += 3
				continue
			}
		}
		i++
	}

	units := make([]NALUnit, 0, len(marks))
	for n, m := range marks {
		end := len(data)
		if n+1 < len(marks) {
			end = marks[n+1].pos
		}
		if end-m.pos <= m.size {
			continue
		}
		units = append(units, NALUnit{Data: data[m.pos:end], StartSize: m.size})
	}
	return units
}

type nalClass struct {
	vcl        bool
	firstSlice bool
	key        bool
	meta       bool
}

func classifyH265(nal []byte) nalClass {
	if len(nal) < 2 {
		return nalClass{meta: true}
	}
	t := (nal[0] >> 1) & 0x3f
	switch {
	case t < 32:
		first := len(nal) > 2 && nal[2]&0x80 != 0
		return nalClass{vcl: true, firstSlice: first, key: t >= 16 && t <= 21}
	case t == 32: // VPS opens a random access unit
		return nalClass{meta: true, key: true}
	default:
		return nalClass{meta: true}
	}
}

func classifyH264(nal []byte) nalClass {
	if len(nal) < 1 {
		return nalClass{meta: true}
	}
	t := nal[0] & 0x1f
	switch {
	case t >= 1 && t <= 5:
		// first_mb_in_slice == 0 encodes as a single 1 bit
		first := len(nal) > 1 && nal[1]&0x80 != 0
		return nalClass{vcl: true, firstSlice: first, key: t == 5}
	case t == 7:
		return nalClass{meta: true, key: true}
	default:
		return nalClass{meta: true}
	}
}

// AnnexBSource reads a raw H.264 or H.265 elementary stream file and yields
// one frame per NAL unit. Pictures are timed at a fixed rate; parameter sets
// and SEI take the timestamp of the picture that follows them.
type AnnexBSource struct {
	path          string
	codec         media.Codec
	frameDuration uint64

	frames   []media.Frame
	keys     []int
	pos      int
	opened   bool
	ready    bool
	duration uint64
	data     []byte

	onFrame     func(*media.Frame)
	onReady     func()
	onTrackInfo func(*media.TrackInfo)
}

// NewAnnexBSource creates a source for the file at path. fps <= 0 selects
// DefaultFPS.
func NewAnnexBSource(path string, codec media.Codec, fps int) (*AnnexBSource, error) {
	if !codec.IsVideo() {
		return nil, fmt.Errorf("annex-b source needs a video codec, got %q", codec)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &AnnexBSource{
		path:          path,
		codec:         codec,
		frameDuration: uint64(1000 / fps),
	}, nil
}

// Open reads the file into memory.
func (s *AnnexBSource) Open() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AnnexBSource.Open",
			"path":     s.path,
			"error":    err.Error(),
		}).Error("Failed to read elementary stream")
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	s.data = data
	s.opened = true
	s.ready = false
	s.pos = 0
	return nil
}

// Init splits the stream into frames and reports the video track.
func (s *AnnexBSource) Init() error {
	if !s.opened {
		return ErrNotOpen
	}

	s.index()
	if len(s.frames) == 0 {
		return fmt.Errorf("%s: %w", s.path, ErrNoFrames)
	}
	s.ready = true

	logrus.WithFields(logrus.Fields{
		"function": "AnnexBSource.Init",
		"path":     s.path,
		"codec":    s.codec,
		"frames":   len(s.frames),
		"keys":     len(s.keys),
		"duration": s.duration,
	}).Debug("Indexed elementary stream")

	if s.onTrackInfo != nil {
		s.onTrackInfo(&media.TrackInfo{
			Index:     0,
			Type:      media.TrackVideo,
			Codec:     s.codec,
			ClockRate: 90000,
			Duration:  s.duration,
		})
	}
	if s.onReady != nil {
		s.onReady()
	}
	return nil
}

func (s *AnnexBSource) index() {
	classify := classifyH265
	if s.codec == media.CodecH264 {
		classify = classifyH264
	}

	units := SplitAnnexB(s.data)
	s.frames = make([]media.Frame, 0, len(units))
	s.keys = s.keys[:0]

	pic := -1
	keyPending := false
	for _, u := range units {
		c := classify(u.Data[u.StartSize:])
		if c.vcl && (c.firstSlice || pic < 0) {
			pic++
		}

		slot := pic
		if !c.vcl {
			slot = pic + 1
		}
		dts := uint64(slot) * s.frameDuration

		var flags media.FrameFlags
		if c.meta {
			flags |= media.FlagMeta
		}
		// Only the first unit of a random access point carries the key flag.
		if c.key && !keyPending {
			flags |= media.FlagKeyStart
			s.keys = append(s.keys, len(s.frames))
			keyPending = true
		}
		if c.vcl {
			keyPending = false
		}

		s.frames = append(s.frames, media.Frame{
			Data:      u.Data,
			StartSize: u.StartSize,
			DTS:       dts,
			PTS:       dts,
			Flags:     flags,
			Codec:     s.codec,
		})
	}

	if pic >= 0 {
		s.duration = uint64(pic+1) * s.frameDuration
	} else {
		s.duration = 0
	}
}

// ReadNext delivers the next frame or returns io.EOF.
func (s *AnnexBSource) ReadNext() error {
	if !s.ready {
		return ErrNotOpen
	}
	if s.pos >= len(s.frames) {
		return io.EOF
	}

	// Consumers may rescale timestamps in place, so hand out a copy.
	f := s.frames[s.pos]
	s.pos++
	if s.onFrame != nil {
		s.onFrame(&f)
	}
	return nil
}

// Seek positions the source on the first random access point whose
// timestamp is at or after timestamp.
func (s *AnnexBSource) Seek(timestamp uint64) error {
	if !s.ready {
		return ErrNotOpen
	}

	n := sort.Search(len(s.keys), func(i int) bool {
		return s.frames[s.keys[i]].DTS >= timestamp
	})
	if n == len(s.keys) {
		logrus.WithFields(logrus.Fields{
			"function":  "AnnexBSource.Seek",
			"path":      s.path,
			"timestamp": timestamp,
			"duration":  s.duration,
		}).Warn("Seek target beyond last key frame")
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, timestamp)
	}

	s.pos = s.keys[n]
	return nil
}

// Duration returns the stream duration in milliseconds.
func (s *AnnexBSource) Duration() uint64 {
	return s.duration
}

// Close drops the file contents. The source may be opened again.
func (s *AnnexBSource) Close() error {
	s.data = nil
	s.frames = nil
	s.keys = nil
	s.pos = 0
	s.opened = false
	s.ready = false
	return nil
}

// SetOnFrame registers the frame callback used by ReadNext.
func (s *AnnexBSource) SetOnFrame(cb func(*media.Frame)) { s.onFrame = cb }

// SetOnReady registers the callback invoked when Init completes.
func (s *AnnexBSource) SetOnReady(cb func()) { s.onReady = cb }

// SetOnTrackInfo registers the callback receiving the video track description.
func (s *AnnexBSource) SetOnTrackInfo(cb func(*media.TrackInfo)) { s.onTrackInfo = cb }

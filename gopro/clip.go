package gopro

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tekkamanendless/gopro-telemetry-processor/gpmf"
	"github.com/tekkamanendless/gopro-telemetry-processor/mp4meta"
)

// MetadataHandler is the handler name of the GPMF telemetry track.
const MetadataHandler = "GoPro MET"

// Thresholds for classifying a recording as high resolution.  Resolution
// is decided from the decoded track dimensions, never from the file
// extension, because low-resolution proxies are plain MP4 files too.
const (
	highResolutionLong  = 1920
	highResolutionShort = 1080
)

// Clip is the telemetry extracted from a single recording file.
type Clip struct {
	Path       string
	LowResPath string // proxy file carrying the same recording, if seen

	Device   string
	Firmware string

	Width           int
	Height          int
	ResolutionKnown bool

	Start    time.Time
	Duration time.Duration

	Streams *gpmf.StreamSet
	GPS     gpmf.Track

	// Fingerprint identifies the recording content so the same session
	// captured at two resolutions is only counted once.
	Fingerprint uint64

	MUID []uint32
	GUMI []byte
}

// Resolution returns the decoded video dimensions, or ErrResolutionUnknown
// when the container carried none.
func (c *Clip) Resolution() (width, height int, err error) {
	if !c.ResolutionKnown {
		return 0, 0, ErrResolutionUnknown
	}
	return c.Width, c.Height, nil
}

// HighResolution reports whether the clip was decoded at 1080p or better.
// Orientation does not matter; a portrait 1080x1920 clip qualifies.
func (c *Clip) HighResolution() bool {
	long, short := c.Width, c.Height
	if short > long {
		long, short = short, long
	}
	return long >= highResolutionLong && short >= highResolutionShort
}

// ContentHash fingerprints a telemetry payload.
func ContentHash(buffer []byte) uint64 {
	return xxhash.Sum64(buffer)
}

// ParseClip reads the telemetry track of one MP4 (or LRV) file.  The file
// is closed before returning; only decoded telemetry is kept in memory.
func ParseClip(path string) (*Clip, error) {
	file, err := mp4meta.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer file.Close()

	clip := &Clip{
		Path:     path,
		Firmware: file.Info.Firmware(),
		Duration: file.Info.Duration,
		Start:    file.Info.Creation,
		MUID:     file.Info.MUID(),
		GUMI:     file.Info.GUMI(),
	}
	clip.Device = DeviceModel(clip.Firmware)

	if video := file.VideoTrack(); video != nil {
		clip.Width = video.Width
		clip.Height = video.Height
		clip.ResolutionKnown = clip.Width > 0 && clip.Height > 0
	}
	if !clip.ResolutionKnown {
		logger.Debugf("No video track dimensions in %q.", path)
	}

	metadata := file.Track(MetadataHandler)
	if metadata == nil {
		return nil, fmt.Errorf("%q: %w", path, ErrMissingMetadataTrack)
	}

	var blocks []gpmf.Block
	for i, sample := range metadata.Samples {
		buffer, err := file.ReadSample(sample)
		if err != nil {
			return nil, fmt.Errorf("could not read telemetry sample %d of %q: %w", i, path, err)
		}
		if i == 0 {
			clip.Fingerprint = ContentHash(buffer)
		}
		entries, err := gpmf.Parse(buffer)
		if err != nil {
			// A damaged tail does not invalidate the entries before it.
			logger.Warnf("Telemetry sample %d of %q is damaged: %v", i, path, err)
		}
		if len(entries) == 0 {
			continue
		}
		blocks = append(blocks, gpmf.Block{
			Time: gpmf.Timestamp{
				Start:    sample.Time,
				Duration: sample.Duration,
			},
			Entries: entries,
		})
	}

	clip.Streams = gpmf.BuildStreams(blocks)
	track, err := clip.Streams.GPS()
	if err != nil {
		logger.Debugf("No GPS stream in %q: %v", path, err)
	}
	clip.GPS = track

	// The GPS receiver carries the only wall-clock time on the camera that
	// survives battery pulls; prefer it to the MP4 creation time.
	if start, ok := track.StartUTC(gpsFixMinimum2D); ok {
		clip.Start = start
	}
	return clip, nil
}

// gpsFixMinimum2D is the weakest fix whose UTC stamps are trustworthy.
const gpsFixMinimum2D = 2

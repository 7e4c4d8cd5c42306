package gopro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tekkamanendless/gopro-telemetry-processor/gpmf"
)

// MergedStream is one sensor stream stitched across the clips of a
// session.  Sample times are relative to the session start.
type MergedStream struct {
	Name    string
	DataKey string
	Units   string
	Samples []gpmf.Sample
}

// Session is a recording that the camera split across multiple files.
type Session struct {
	Clips    []*Clip
	Start    time.Time
	Duration time.Duration
	Streams  []*MergedStream
	GPS      gpmf.Track
}

// SkippedFile records an input that could not contribute to any session.
type SkippedFile struct {
	Path string
	Err  error
}

// AssembleOptions controls AssembleSessions.
type AssembleOptions struct {
	// Workers bounds concurrent file parsing; zero means one per CPU.
	Workers int

	// SkipOnError records unparseable files as skipped instead of
	// aborting.  Files without a telemetry track are always skipped
	// without error; cameras write such files alongside real recordings.
	SkipOnError bool

	// Progress, when set, is called after each file is parsed.
	Progress func(done, total int)
}

// AssembleSession stitches clips into one session timeline.  Clips are
// ordered by their embedded start times; where a later clip's head
// overlaps the span already covered by earlier clips, the overlapping
// samples are dropped so every merged stream is strictly increasing in
// time.
func AssembleSession(clips []*Clip) *Session {
	session := &Session{Clips: clips}
	if len(clips) == 0 {
		return session
	}

	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].Start.Before(clips[j].Start)
	})
	session.Start = clips[0].Start

	offsets := clipOffsets(clips)
	for i, clip := range clips {
		if end := offsets[i] + clip.Duration; end > session.Duration {
			session.Duration = end
		}
	}

	// floor[i] is the span already covered before clip i starts
	// contributing.  Anything a later clip recorded below its floor
	// duplicates data we already have.
	floors := make([]time.Duration, len(clips))
	var covered time.Duration
	for i, clip := range clips {
		floors[i] = covered
		if end := offsets[i] + clip.Duration; end > covered {
			covered = end
		}
	}

	merged := map[string]*MergedStream{}
	var order []string
	for i, clip := range clips {
		if clip.Streams == nil {
			continue
		}
		for _, stream := range clip.Streams.Streams() {
			target := merged[stream.DataKey]
			if target == nil {
				target = &MergedStream{
					Name:    stream.Name,
					DataKey: stream.DataKey,
					Units:   stream.Units,
				}
				merged[stream.DataKey] = target
				order = append(order, stream.DataKey)
			}
			for _, sample := range stream.Samples {
				t := offsets[i] + sample.Time
				if t < floors[i] {
					continue
				}
				target.Samples = append(target.Samples, gpmf.Sample{
					Time:   t,
					Fields: sample.Fields,
				})
			}
		}
		for _, point := range clip.GPS.Points {
			t := offsets[i] + point.Time
			if t < floors[i] {
				continue
			}
			point.Time = t
			session.GPS.Points = append(session.GPS.Points, point)
		}
	}
	for _, key := range order {
		session.Streams = append(session.Streams, merged[key])
	}
	return session
}

// clipOffsets places each clip on the session timeline.  Embedded start
// times position the clips when present; without them the clips are laid
// end to end, which is how the camera writes chaptered files anyway.
func clipOffsets(clips []*Clip) []time.Duration {
	offsets := make([]time.Duration, len(clips))
	if clips[0].Start.IsZero() {
		var elapsed time.Duration
		for i, clip := range clips {
			offsets[i] = elapsed
			elapsed += clip.Duration
		}
		return offsets
	}
	for i, clip := range clips {
		offsets[i] = clip.Start.Sub(clips[0].Start)
	}
	return offsets
}

// AssembleSessions parses every file, drops duplicates, groups clips into
// recording sessions, and assembles each session's timeline.  Sessions
// come back ordered by start time.
func AssembleSessions(ctx context.Context, paths []string, options AssembleOptions) ([]*Session, []SkippedFile, error) {
	results, err := ExtractAll(ctx, paths, ExtractOptions{
		Workers:     options.Workers,
		SkipOnError: true,
		Progress:    options.Progress,
	})
	if err != nil {
		return nil, nil, err
	}

	var clips []*Clip
	var skipped []SkippedFile
	for _, result := range results {
		switch {
		case result.Err == nil:
			clips = append(clips, result.Clip)
		case errors.Is(result.Err, ErrMissingMetadataTrack):
			logger.Infof("No telemetry track in %q; skipping.", result.Path)
			skipped = append(skipped, SkippedFile{Path: result.Path, Err: result.Err})
		case options.SkipOnError:
			skipped = append(skipped, SkippedFile{Path: result.Path, Err: result.Err})
		default:
			return nil, skipped, fmt.Errorf("%w: %q: %v", ErrSessionGrouping, result.Path, result.Err)
		}
	}

	clips = dropDuplicates(clips)

	groups := map[string][]*Clip{}
	var groupOrder []string
	for _, clip := range clips {
		key := groupKey(clip)
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], clip)
	}

	var sessions []*Session
	for _, key := range groupOrder {
		sessions = append(sessions, AssembleSession(groups[key]))
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(sessions[j].Start)
	})
	return sessions, skipped, nil
}

// dropDuplicates removes clips that are the same recording at a second
// resolution, keeping the high-resolution copy and noting the proxy path
// on it.
func dropDuplicates(clips []*Clip) []*Clip {
	byFingerprint := map[uint64]*Clip{}
	var out []*Clip
	for _, clip := range clips {
		seen, ok := byFingerprint[clip.Fingerprint]
		if !ok {
			byFingerprint[clip.Fingerprint] = clip
			out = append(out, clip)
			continue
		}
		if clip.HighResolution() && !seen.HighResolution() {
			// The proxy arrived first; swap it out in place.
			clip.LowResPath = seen.Path
			byFingerprint[clip.Fingerprint] = clip
			for i, kept := range out {
				if kept == seen {
					out[i] = clip
				}
			}
			continue
		}
		logger.Debugf("Dropping %q: duplicate of %q.", clip.Path, seen.Path)
		seen.LowResPath = clip.Path
	}
	return out
}

// groupKey identifies the recording session a clip belongs to.  Newer
// devices stamp every chapter of a session with one MUID; older ones
// share a GUMI.  A clip with neither is its own session.
func groupKey(clip *Clip) string {
	if usesMUIDGrouping(clip.Firmware) && len(clip.MUID) > 0 {
		return fmt.Sprintf("muid:%v", clip.MUID)
	}
	if len(clip.GUMI) > 0 {
		return fmt.Sprintf("gumi:%x", clip.GUMI)
	}
	return fmt.Sprintf("file:%016x", clip.Fingerprint)
}

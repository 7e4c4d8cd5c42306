package gopro

import "errors"

var (
	// ErrMissingMetadataTrack indicates that the file has no recognized
	// telemetry track.  Clip-level parsing surfaces it to the caller;
	// session grouping treats a missing track in one candidate file as
	// "continue without error".
	ErrMissingMetadataTrack = errors.New("no telemetry metadata track")

	// ErrResolutionUnknown indicates that video dimension metadata was
	// absent.  Classification falls back to low resolution.
	ErrResolutionUnknown = errors.New("video resolution unknown")

	// ErrSessionGrouping indicates that session assembly failed as a
	// whole.  With skip-on-error enabled, individual file failures are
	// reported as skipped files instead.
	ErrSessionGrouping = errors.New("session grouping failed")
)

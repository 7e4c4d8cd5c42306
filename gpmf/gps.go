package gpmf

import (
	"fmt"
	"time"
)

// gpsEpoch is the base of the GPS9 per-point clock (days/seconds fields).
var gpsEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// GpsPoint is one normalized GPS sample.  Both payload generations decode
// into this shape; Fix and DOP are per point for GPS9 devices and apply
// block-wide for GPS5 devices.
type GpsPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed2D   float64
	Speed3D   float64
	// Fix is the satellite lock level: 0 no lock, 2 2D lock, 3 3D lock.
	Fix uint32
	// DOP is the dilution of precision; below 5.0 is conventionally good.
	DOP float64
	// Time is relative to the start of the source file.
	Time time.Duration
	// UTC is the GPS wall-clock time.  GPS9 devices log it per point;
	// GPS5 devices log one value per sample block.
	UTC time.Time
}

// Track is an ordered sequence of GPS points.
type Track struct {
	Points []GpsPoint
}

// Prune returns the points that satisfy both thresholds without mutating
// the source track, so pruning is repeatable with different thresholds.
// A minFix of 0 disables the lock filter; a maxDOP of 0 disables the
// precision filter.
func (t Track) Prune(minFix uint32, maxDOP float64) Track {
	kept := make([]GpsPoint, 0, len(t.Points))
	for _, point := range t.Points {
		if point.Fix < minFix {
			continue
		}
		if maxDOP > 0 && point.DOP > maxDOP {
			continue
		}
		kept = append(kept, point)
	}
	return Track{Points: kept}
}

// StartUTC returns the wall-clock time of the start of the source file,
// anchored on the first point with at least the given satellite lock.
// The second return is false when no such point was logged.
func (t Track) StartUTC(minFix uint32) (time.Time, bool) {
	for _, point := range t.Points {
		if point.Fix >= minFix && !point.UTC.IsZero() {
			return point.UTC.Add(-point.Time), true
		}
	}
	return time.Time{}, false
}

// GPS extracts the GPS track, preferring the newer 9-field payload when the
// device logs both generations.  Returns an empty track when the source has
// no GPS stream at all.
func (s *StreamSet) GPS() (Track, error) {
	if stream := s.Stream(KeyGPS9); stream != nil {
		return gps9Track(stream)
	}
	if stream := s.Stream(KeyGPS5); stream != nil {
		return gps5Track(stream)
	}
	return Track{}, nil
}

// gps5Track decodes the legacy 5-tuple payload.  Satellite fix, precision,
// and UTC time come from sibling entries and apply to the whole sample
// block rather than per point.
func gps5Track(stream *SensorStream) (Track, error) {
	track := Track{}
	for _, block := range stream.blocks {
		data := block.strm.Find(KeyGPS5)
		if data == nil {
			continue
		}

		rows, err := data.FloatRows("")
		if err != nil {
			return track, fmt.Errorf("could not decode GPS5 payload: %w", err)
		}
		rows, err = scaleFromSibling(block.strm, rows)
		if err != nil {
			logger.Debugf("GPS5 block: %v; using unscaled values", err)
		}

		var fix uint32
		if entry := block.strm.Find(KeyGPSFix); entry != nil {
			if value, err := entry.AsUint(); err == nil {
				fix = uint32(value)
			}
		}
		dop := 0.0
		if entry := block.strm.Find(KeyGPSPrecision); entry != nil {
			if value, err := entry.AsUint(); err == nil {
				// GPSP logs DOP x100.
				dop = float64(value) / 100.0
			}
		}
		var utc time.Time
		if entry := block.strm.Find(KeyGPSTime); entry != nil {
			if value, err := entry.AsTime(); err == nil {
				utc = value
			} else {
				logger.Debugf("GPS5 block: %v", err)
			}
		}

		for i, row := range rows {
			if len(row) < 5 {
				return track, fmt.Errorf("GPS5 row has %d fields, expected 5", len(row))
			}
			track.Points = append(track.Points, GpsPoint{
				Latitude:  row[0],
				Longitude: row[1],
				Altitude:  row[2],
				Speed2D:   row[3],
				Speed3D:   row[4],
				Fix:       fix,
				DOP:       dop,
				Time:      interpolate(block.time, i, len(rows)),
				UTC:       utc,
			})
		}
	}
	return track, nil
}

// gps9Track decodes the newer 9-tuple payload, which carries UTC time
// (days and seconds since 2000-01-01), DOP, and fix level per point.
func gps9Track(stream *SensorStream) (Track, error) {
	track := Track{}
	for _, block := range stream.blocks {
		data := block.strm.Find(KeyGPS9)
		if data == nil {
			continue
		}

		template := ""
		if entry := block.strm.Find(KeyTypeTemplate); entry != nil {
			template = entry.AsString()
		}
		rows, err := data.FloatRows(template)
		if err != nil {
			return track, fmt.Errorf("could not decode GPS9 payload: %w", err)
		}
		rows, err = scaleFromSibling(block.strm, rows)
		if err != nil {
			logger.Debugf("GPS9 block: %v; using unscaled values", err)
		}

		for i, row := range rows {
			if len(row) < 9 {
				return track, fmt.Errorf("GPS9 row has %d fields, expected 9", len(row))
			}
			days := int(row[5])
			seconds := row[6]
			track.Points = append(track.Points, GpsPoint{
				Latitude:  row[0],
				Longitude: row[1],
				Altitude:  row[2],
				Speed2D:   row[3],
				Speed3D:   row[4],
				Fix:       uint32(row[8]),
				DOP:       row[7],
				Time:      interpolate(block.time, i, len(rows)),
				UTC:       gpsEpoch.AddDate(0, 0, days).Add(time.Duration(seconds * float64(time.Second))),
			})
		}
	}
	return track, nil
}

// scaleFromSibling applies the container's SCAL divisors to the rows.
func scaleFromSibling(strm *Entry, rows [][]float64) ([][]float64, error) {
	entry := strm.Find(KeyScale)
	if entry == nil {
		return rows, nil
	}
	divisors, err := entry.Scale()
	if err != nil {
		return rows, err
	}
	return applyScale(rows, divisors)
}

package gpmf

import (
	"sort"
	"time"
)

// structuralKeys are the stream-description entries of a STRM container.
// Everything else inside the container is payload.
var structuralKeys = map[string]bool{
	KeyStreamName:   true,
	KeyScale:        true,
	KeySIUnits:      true,
	KeyUnits:        true,
	KeyTypeTemplate: true,
	KeyTotalSamples: true,
	KeyTimeOffset:   true,
	KeyEmptyCount:   true,
	KeyOrientIn:     true,
	KeyOrientOut:    true,
	KeyMatrix:       true,
	KeyRemark:       true,
}

// scope carries the interpreter state that sibling entries establish for the
// entries that follow them inside the same container.  It is copied on
// container entry, so leaving a container restores the outer scope.
type scope struct {
	scale    []float64
	template string
}

// StreamSet groups the decoded sensor streams of one source, keyed by
// device ID and stream name.
type StreamSet struct {
	streams map[string]*SensorStream
	order   []string
}

// BuildStreams walks the decoded KLV trees of a sequence of metadata sample
// blocks and groups their entries into sensor streams.  Unknown stream types
// are retained as opaque streams rather than dropped.
func BuildStreams(blocks []Block) *StreamSet {
	set := &StreamSet{streams: map[string]*SensorStream{}}
	for _, block := range blocks {
		for _, device := range block.Entries {
			if device.Key != KeyDevice {
				continue
			}
			deviceID := ""
			deviceName := ""
			if entry := device.Find(KeyDeviceID); entry != nil {
				// DVID is a uint32 on most devices but a FourCC on some
				// older ones; either way it renders as a string key.
				deviceID = entry.AsString()
			}
			if entry := device.Find(KeyDeviceName); entry != nil {
				deviceName = entry.AsString()
			}
			for _, strm := range device.FindAll(KeyStream) {
				set.addBlock(deviceID, deviceName, strm, block.Time)
			}
		}
	}
	return set
}

func (s *StreamSet) addBlock(deviceID, deviceName string, strm *Entry, ts Timestamp) {
	sc := scope{}
	var data *Entry
	name := ""
	units := ""
	var total uint64

	// Walk the container in stream order so that SCAL and TYPE apply to the
	// payload entries that follow them.  The payload proper is the last
	// non-structural leaf (GPS streams carry GPSU/GPSF/GPSP before it).
	for _, child := range strm.Children {
		switch child.Key {
		case KeyStreamName:
			name = child.AsString()
		case KeyScale:
			divisors, err := child.Scale()
			if err != nil {
				logger.Debugf("Stream %q: could not decode scale: %v", name, err)
				continue
			}
			sc.scale = divisors
		case KeyTypeTemplate:
			sc.template = child.AsString()
		case KeySIUnits, KeyUnits:
			if units == "" {
				units = child.AsString()
			}
		case KeyTotalSamples:
			if value, err := child.AsUint(); err == nil {
				total = value
			}
		default:
			if !structuralKeys[child.Key] && !child.IsContainer() {
				data = child
			}
		}
	}

	if data == nil {
		logger.Debugf("Stream %q has no payload entry", name)
		return
	}
	if name == "" {
		name = data.Key
	}

	key := deviceID + "/" + name
	stream, ok := s.streams[key]
	if !ok {
		stream = &SensorStream{
			DeviceID:   deviceID,
			DeviceName: deviceName,
			Name:       name,
			DataKey:    data.Key,
			Units:      units,
		}
		s.streams[key] = stream
		s.order = append(s.order, key)
	}
	if total > 0 {
		stream.Total = total
	}
	stream.blocks = append(stream.blocks, streamBlock{strm: strm, time: ts})

	rows, err := data.FloatRows(sc.template)
	if err != nil {
		logger.Debugf("Stream %q: keeping opaque payload: %v", name, err)
		stream.Opaque = true
		return
	}
	scaled, err := applyScale(rows, sc.scale)
	if err != nil {
		logger.Debugf("Stream %q: %v; using unscaled values", name, err)
	}

	for i, row := range scaled {
		stream.Samples = append(stream.Samples, Sample{
			Time:   interpolate(ts, i, len(scaled)),
			Fields: row,
		})
	}
}

// interpolate assigns element i of count its timestamp within the enclosing
// sample's [start, start+duration) interval, assuming uniform intra-sample
// spacing.  A zero duration reuses the start timestamp for every element.
func interpolate(ts Timestamp, i, count int) time.Duration {
	if ts.Duration == 0 || count <= 0 {
		return ts.Start
	}
	return ts.Start + time.Duration(i)*(ts.Duration/time.Duration(count))
}

// Streams returns the streams in first-seen order.
func (s *StreamSet) Streams() []*SensorStream {
	streams := make([]*SensorStream, 0, len(s.order))
	for _, key := range s.order {
		streams = append(streams, s.streams[key])
	}
	return streams
}

// Stream returns the first stream whose payload uses the given FourCC.
func (s *StreamSet) Stream(dataKey string) *SensorStream {
	for _, key := range s.order {
		if s.streams[key].DataKey == dataKey {
			return s.streams[key]
		}
	}
	return nil
}

// Names returns the sorted set of stream display names.
func (s *StreamSet) Names() []string {
	seen := map[string]bool{}
	names := []string{}
	for _, key := range s.order {
		name := s.streams[key].Name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DeviceNames returns the sorted set of device display names.
func (s *StreamSet) DeviceNames() []string {
	seen := map[string]bool{}
	names := []string{}
	for _, key := range s.order {
		name := s.streams[key].DeviceName
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

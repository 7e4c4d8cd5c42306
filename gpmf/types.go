package gpmf

import "time"

// Well-known FourCC keys for the GPMF container structure.
const (
	KeyDevice       = "DEVC" // unique device source for metadata
	KeyDeviceID     = "DVID" // device/track ID
	KeyDeviceName   = "DVNM" // device display name
	KeyStream       = "STRM" // nested signal stream
	KeyStreamName   = "STNM" // stream display name
	KeyRemark       = "RMRK" // free-text comment
	KeyScale        = "SCAL" // scale divisor for sibling payloads
	KeySIUnits      = "SIUN" // SI units
	KeyUnits        = "UNIT" // display units
	KeyTypeTemplate = "TYPE" // structure template for complex payloads
	KeyTotalSamples = "TSMP" // total samples delivered since record start
	KeyTimeOffset   = "TIMO" // payload delay in seconds
	KeyEmptyCount   = "EMPT" // empty payload count
	KeyOrientIn     = "ORIN" // input orientation
	KeyOrientOut    = "ORIO" // output orientation
	KeyMatrix       = "MTRX" // channel transform matrix

	KeyGPS5         = "GPS5" // lat, lon, alt, 2D speed, 3D speed
	KeyGPS9         = "GPS9" // adds per-point UTC time, DOP, and fix
	KeyGPSFix       = "GPSF" // satellite lock level for the sample block
	KeyGPSPrecision = "GPSP" // dilution of precision x100 for the sample block
	KeyGPSTime      = "GPSU" // UTC time for the sample block
	KeyGPSAltitude  = "GPSA" // altitude reference system
)

// Entry is a single KLV record: a four-character key, a type descriptor,
// and either a raw payload or an ordered sequence of child entries.
type Entry struct {
	Key      string // FourCC
	Type     byte
	Size     uint8
	Count    uint16
	Raw      []byte   // leaf payload, unpadded
	Children []*Entry // container payload (Type == TypeNested)
}

// IsContainer reports whether this entry nests child entries.
func (e *Entry) IsContainer() bool {
	return e.Type == TypeNested
}

// Find returns the first direct child with the given key.
func (e *Entry) Find(key string) *Entry {
	for _, child := range e.Children {
		if child.Key == key {
			return child
		}
	}
	return nil
}

// FindAll returns all direct children with the given key.
func (e *Entry) FindAll(key string) []*Entry {
	entries := []*Entry{}
	for _, child := range e.Children {
		if child.Key == key {
			entries = append(entries, child)
		}
	}
	return entries
}

// Timestamp is the time span of one timed-metadata MP4 sample: the decode
// time relative to the start of the file and the duration until the next
// sample was written.
type Timestamp struct {
	Start    time.Duration
	Duration time.Duration
}

// Block is the decoded KLV tree of one timed-metadata MP4 sample together
// with its time span.
type Block struct {
	Time    Timestamp
	Entries []*Entry
}

// Sample is one decoded element of a sensor stream.  Fields holds the scaled
// numeric values for the element (for example x, y, z for an accelerometer).
type Sample struct {
	Time   time.Duration
	Fields []float64
}

// SensorStream is a named device stream with its decoded samples in order.
type SensorStream struct {
	DeviceID   string
	DeviceName string
	Name       string // STNM display name
	DataKey    string // FourCC of the payload entry
	Units      string // SIUN or UNIT, first declared
	Total      uint64 // last TSMP value seen
	Samples    []Sample
	// Opaque is set when the payload could not be numerically interpreted
	// (unknown type code or non-numeric compound).  The raw entries are
	// retained in the blocks for round-trip fidelity.
	Opaque bool

	blocks []streamBlock
}

// streamBlock keeps the raw STRM container for one metadata sample so that
// version-specific consumers (the GPS processor) can read sibling entries.
type streamBlock struct {
	strm *Entry
	time Timestamp
}

// Package mp4meta reads just enough of the MP4/QuickTime container to serve
// telemetry extraction: the sample descriptors of a named track, video
// dimensions, the container creation time, and the user-data fields.  It
// deliberately knows nothing about GPMF; the caller reads the sample byte
// ranges and decodes them itself.
package mp4meta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// maxMoovSize caps the moov box read, which is loaded into memory whole.
const maxMoovSize = int64(64 << 20)

// mp4Epoch converts the container's 1904-based timestamps to Unix time.
const mp4Epoch = 2082844800

// ErrNotMP4 indicates that no moov box could be located.
var ErrNotMP4 = errors.New("no moov box found")

// Sample is one timed sample of a track: its byte range in the file, its
// decode time relative to the start of the track, and its duration.
type Sample struct {
	Offset   int64
	Size     int64
	Time     time.Duration
	Duration time.Duration
}

// Track is the per-track metadata needed by telemetry extraction.
type Track struct {
	Handler  string // hdlr component name, e.g. "GoPro MET"
	Kind     string // hdlr handler type, e.g. "meta", "vide"
	Width    int
	Height   int
	Duration time.Duration
	Samples  []Sample
}

// UserField is one raw box inside the moov "udta" box.
type UserField struct {
	Name string
	Data []byte
}

// Info is the decoded container metadata.
type Info struct {
	Creation time.Time
	Duration time.Duration
	Tracks   []*Track
	UserData []UserField
}

// File is an open MP4 file: parsed container metadata plus the reader used
// to fetch sample byte ranges.
type File struct {
	reader io.ReaderAt
	closer io.Closer
	Info   *Info
}

// Open parses the container metadata of the file at the given path.
func Open(path string) (*File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	stat, err := handle.Stat()
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("could not stat file: %w", err)
	}
	file, err := NewFile(handle, stat.Size())
	if err != nil {
		handle.Close()
		return nil, err
	}
	file.closer = handle
	return file, nil
}

// NewFile parses container metadata from an in-memory or already-open source.
func NewFile(reader io.ReaderAt, size int64) (*File, error) {
	info, err := parse(reader, size)
	if err != nil {
		return nil, err
	}
	return &File{reader: reader, Info: info}, nil
}

// Close releases the underlying file handle, if any.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Track returns the first track whose handler name or kind matches, or nil.
func (f *File) Track(handler string) *Track {
	for _, track := range f.Info.Tracks {
		if track.Handler == handler || track.Kind == handler {
			return track
		}
	}
	return nil
}

// VideoTrack returns the first video track, or nil.
func (f *File) VideoTrack() *Track {
	return f.Track("vide")
}

// ReadSample reads the byte range of one sample.
func (f *File) ReadSample(sample Sample) ([]byte, error) {
	buffer := make([]byte, sample.Size)
	if _, err := f.reader.ReadAt(buffer, sample.Offset); err != nil {
		return nil, fmt.Errorf("could not read sample at offset %d: %w", sample.Offset, err)
	}
	return buffer, nil
}

// UserField returns the payload of the named udta box, or nil.
func (i *Info) UserField(name string) []byte {
	for _, field := range i.UserData {
		if field.Name == name {
			return field.Data
		}
	}
	return nil
}

// MUID returns the media unique ID, which GoPro stores as little-endian
// 32-bit words in the udta box.  Clips of the same recording session share
// it on newer devices.
func (i *Info) MUID() []uint32 {
	data := i.UserField("MUID")
	words := make([]uint32, 0, len(data)/4)
	for offset := 0; offset+4 <= len(data); offset += 4 {
		words = append(words, binary.LittleEndian.Uint32(data[offset:offset+4]))
	}
	return words
}

// GUMI returns the global unique media ID from the udta box.
func (i *Info) GUMI() []byte {
	return i.UserField("GUMI")
}

// Firmware returns the camera firmware string from the udta box.
func (i *Info) Firmware() string {
	return strings.TrimRight(string(i.UserField("FIRM")), "\x00")
}

func parse(reader io.ReaderAt, size int64) (*Info, error) {
	var offset int64
	for offset+8 <= size {
		boxSize, boxType, headerSize, err := readBoxHeader(reader, offset, size)
		if err != nil || boxSize <= 0 {
			break
		}
		if boxType == "moov" {
			moovSize := boxSize - headerSize
			if moovSize > maxMoovSize {
				return nil, fmt.Errorf("moov box of %d bytes exceeds limit", moovSize)
			}
			buffer := make([]byte, moovSize)
			if _, err := reader.ReadAt(buffer, offset+headerSize); err != nil && err != io.EOF {
				return nil, fmt.Errorf("could not read moov box: %w", err)
			}
			return parseMoov(buffer)
		}
		offset += boxSize
	}
	return nil, ErrNotMP4
}

func readBoxHeader(reader io.ReaderAt, offset, fileSize int64) (boxSize int64, boxType string, headerSize int64, err error) {
	header := make([]byte, 8)
	if _, err := reader.ReadAt(header, offset); err != nil {
		return 0, "", 0, err
	}
	size32 := binary.BigEndian.Uint32(header[0:4])
	boxType = string(header[4:8])
	if size32 == 0 {
		return fileSize - offset, boxType, 8, nil
	}
	if size32 == 1 {
		larger := make([]byte, 8)
		if _, err := reader.ReadAt(larger, offset+8); err != nil {
			return 0, "", 0, err
		}
		size64 := binary.BigEndian.Uint64(larger)
		if size64 < 16 {
			return 0, "", 0, fmt.Errorf("invalid 64-bit box size %d", size64)
		}
		return int64(size64), boxType, 16, nil
	}
	if size32 < 8 {
		return 0, "", 0, fmt.Errorf("invalid box size %d", size32)
	}
	return int64(size32), boxType, 8, nil
}

func readBoxHeaderFrom(buffer []byte, offset int64) (boxSize int64, boxType string, headerSize int64) {
	if offset+8 > int64(len(buffer)) {
		return 0, "", 0
	}
	size32 := binary.BigEndian.Uint32(buffer[offset : offset+4])
	boxType = string(buffer[offset+4 : offset+8])
	if size32 == 0 {
		return int64(len(buffer)) - offset, boxType, 8
	}
	if size32 == 1 {
		if offset+16 > int64(len(buffer)) {
			return 0, "", 0
		}
		return int64(binary.BigEndian.Uint64(buffer[offset+8 : offset+16])), boxType, 16
	}
	return int64(size32), boxType, 8
}

func sliceBox(buffer []byte, offset, length int64) []byte {
	if offset < 0 || length < 0 {
		return nil
	}
	end := offset + length
	if end > int64(len(buffer)) {
		end = int64(len(buffer))
	}
	if offset > end {
		return nil
	}
	return buffer[offset:end]
}

func parseMoov(buffer []byte) (*Info, error) {
	info := &Info{}
	var offset int64
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 {
			break
		}
		payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
		switch boxType {
		case "mvhd":
			parseMvhd(payload, info)
		case "trak":
			if track, err := parseTrak(payload); err == nil {
				info.Tracks = append(info.Tracks, track)
			}
		case "udta":
			info.UserData = parseUdta(payload)
		}
		offset += boxSize
	}
	return info, nil
}

func parseMvhd(payload []byte, info *Info) {
	if len(payload) < 20 {
		return
	}
	version := payload[0]
	if version == 0 {
		creation := binary.BigEndian.Uint32(payload[4:8])
		timescale := binary.BigEndian.Uint32(payload[12:16])
		duration := binary.BigEndian.Uint32(payload[16:20])
		if creation > mp4Epoch {
			info.Creation = time.Unix(int64(creation)-mp4Epoch, 0).UTC()
		}
		if timescale > 0 {
			info.Duration = scaledDuration(uint64(duration), timescale)
		}
		return
	}
	if version == 1 && len(payload) >= 32 {
		creation := binary.BigEndian.Uint64(payload[4:12])
		timescale := binary.BigEndian.Uint32(payload[20:24])
		duration := binary.BigEndian.Uint64(payload[24:32])
		if creation > mp4Epoch {
			info.Creation = time.Unix(int64(creation)-mp4Epoch, 0).UTC()
		}
		if timescale > 0 {
			info.Duration = scaledDuration(duration, timescale)
		}
	}
}

func scaledDuration(ticks uint64, timescale uint32) time.Duration {
	return time.Duration(float64(ticks) / float64(timescale) * float64(time.Second))
}

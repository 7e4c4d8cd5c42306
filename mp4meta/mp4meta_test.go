package mp4meta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// box serializes one box with a 32-bit size header.
func box(name string, payload []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(8+len(payload)))
	out = append(out, name...)
	return append(out, payload...)
}

func fullBoxPayload(version byte, body []byte) []byte {
	out := []byte{version, 0, 0, 0}
	return append(out, body...)
}

func be32(values ...uint32) []byte {
	var out []byte
	for _, value := range values {
		out = binary.BigEndian.AppendUint32(out, value)
	}
	return out
}

func mvhdBox(creation time.Time, timescale, duration uint32) []byte {
	body := be32(uint32(creation.Unix()+mp4Epoch), 0, timescale, duration)
	return box("mvhd", fullBoxPayload(0, body))
}

func tkhdBox(width, height int) []byte {
	payload := make([]byte, 84)
	binary.BigEndian.PutUint32(payload[76:80], uint32(width)<<16)
	binary.BigEndian.PutUint32(payload[80:84], uint32(height)<<16)
	return box("tkhd", payload)
}

func mdhdBox(timescale, duration uint32) []byte {
	payload := make([]byte, 24)
	binary.BigEndian.PutUint32(payload[12:16], timescale)
	binary.BigEndian.PutUint32(payload[16:20], duration)
	return box("mdhd", payload)
}

func hdlrBox(kind, name string) []byte {
	payload := make([]byte, 24)
	copy(payload[8:12], kind)
	payload = append(payload, name...)
	payload = append(payload, 0)
	return box("hdlr", payload)
}

func sttsBox(entries ...uint32) []byte {
	body := be32(uint32(len(entries) / 2))
	body = append(body, be32(entries...)...)
	return box("stts", fullBoxPayload(0, body))
}

func stszBox(uniform uint32, sizes ...uint32) []byte {
	body := be32(uniform, uint32(len(sizes)))
	body = append(body, be32(sizes...)...)
	return box("stsz", fullBoxPayload(0, body))
}

func stscBox(entries ...uint32) []byte {
	body := be32(uint32(len(entries) / 3))
	body = append(body, be32(entries...)...)
	return box("stsc", fullBoxPayload(0, body))
}

func stcoBox(offsets ...uint32) []byte {
	body := be32(uint32(len(offsets)))
	body = append(body, be32(offsets...)...)
	return box("stco", fullBoxPayload(0, body))
}

func trakBox(tkhd []byte, mdhd []byte, hdlr []byte, stblChildren ...[]byte) []byte {
	stbl := box("stbl", bytes.Join(stblChildren, nil))
	minf := box("minf", stbl)
	mdia := box("mdia", bytes.Join([][]byte{mdhd, hdlr, minf}, nil))
	return box("trak", bytes.Join([][]byte{tkhd, mdia}, nil))
}

func TestParseFile(t *testing.T) {
	creation := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	metaTrak := trakBox(
		tkhdBox(0, 0),
		mdhdBox(1000, 3000),
		hdlrBox("meta", "GoPro MET"),
		sttsBox(3, 1000),
		stszBox(0, 16, 20, 24),
		stscBox(1, 2, 1, 2, 1, 1),
		stcoBox(2000, 3000),
	)
	videoTrak := trakBox(
		tkhdBox(1920, 1080),
		mdhdBox(30000, 90000),
		hdlrBox("vide", "GoPro AVC"),
	)
	udta := box("udta", bytes.Join([][]byte{
		box("FIRM", []byte("H22.01.01.10.00\x00")),
		box("MUID", []byte{0x01, 0x00, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00}),
		box("GUMI", []byte{0xde, 0xad, 0xbe, 0xef}),
	}, nil))

	moov := box("moov", bytes.Join([][]byte{
		mvhdBox(creation, 1000, 42000),
		videoTrak,
		metaTrak,
		udta,
	}, nil))

	contents := box("ftyp", []byte("isom0000"))
	contents = append(contents, moov...)

	file, err := NewFile(bytes.NewReader(contents), int64(len(contents)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if !file.Info.Creation.Equal(creation) {
		t.Errorf("creation=%v, want %v", file.Info.Creation, creation)
	}
	if file.Info.Duration != 42*time.Second {
		t.Errorf("duration=%v, want 42s", file.Info.Duration)
	}
	if len(file.Info.Tracks) != 2 {
		t.Fatalf("tracks=%d, want 2", len(file.Info.Tracks))
	}

	video := file.VideoTrack()
	if video == nil {
		t.Fatalf("no video track")
	}
	if video.Width != 1920 || video.Height != 1080 {
		t.Errorf("video dimensions=%dx%d, want 1920x1080", video.Width, video.Height)
	}
	if video.Duration != 3*time.Second {
		t.Errorf("video duration=%v, want 3s", video.Duration)
	}

	meta := file.Track("GoPro MET")
	if meta == nil {
		t.Fatalf("no metadata track")
	}
	if meta.Kind != "meta" {
		t.Errorf("kind=%q, want meta", meta.Kind)
	}
	if len(meta.Samples) != 3 {
		t.Fatalf("samples=%d, want 3", len(meta.Samples))
	}
	// Two samples in the first chunk, one in the second; sizes vary.
	wantSamples := []Sample{
		{Offset: 2000, Size: 16, Time: 0, Duration: time.Second},
		{Offset: 2016, Size: 20, Time: time.Second, Duration: time.Second},
		{Offset: 3000, Size: 24, Time: 2 * time.Second, Duration: time.Second},
	}
	for i, want := range wantSamples {
		if meta.Samples[i] != want {
			t.Errorf("sample %d=%+v, want %+v", i, meta.Samples[i], want)
		}
	}

	if got := file.Info.Firmware(); got != "H22.01.01.10.00" {
		t.Errorf("firmware=%q, want H22.01.01.10.00", got)
	}
	muid := file.Info.MUID()
	if len(muid) != 2 || muid[0] != 1 || muid[1] != 255 {
		t.Errorf("muid=%v, want [1 255]", muid)
	}
	if got := file.Info.GUMI(); !bytes.Equal(got, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("gumi=%x", got)
	}

	if file.Track("sess") != nil {
		t.Errorf("lookup of a missing handler should be nil")
	}
}

func TestReadSample(t *testing.T) {
	payload := []byte("telemetry bytes here")

	contents := box("ftyp", []byte("isom0000"))
	sampleOffset := int64(len(contents) + 8)
	contents = append(contents, box("mdat", payload)...)

	trak := trakBox(
		tkhdBox(0, 0),
		mdhdBox(1000, 1000),
		hdlrBox("meta", "GoPro MET"),
		sttsBox(1, 1000),
		stszBox(uint32(len(payload))),
		stscBox(1, 1, 1),
		stcoBox(uint32(sampleOffset)),
	)
	moov := box("moov", bytes.Join([][]byte{
		mvhdBox(time.Now().UTC().Truncate(time.Second), 1000, 1000),
		trak,
	}, nil))
	contents = append(contents, moov...)

	file, err := NewFile(bytes.NewReader(contents), int64(len(contents)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	track := file.Track("meta")
	if track == nil || len(track.Samples) != 1 {
		t.Fatalf("metadata track missing or empty")
	}
	got, err := file.ReadSample(track.Samples[0])
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("sample=%q, want %q", got, payload)
	}
}

func TestHdlrCountedString(t *testing.T) {
	payload := make([]byte, 24)
	copy(payload[8:12], "meta")
	payload = append(payload, 9)
	payload = append(payload, "GoPro MET"...)

	kind, name := parseHdlr(payload)
	if kind != "meta" || name != "GoPro MET" {
		t.Errorf("hdlr=%q/%q, want meta/GoPro MET", kind, name)
	}
}

func TestParseNotMP4(t *testing.T) {
	contents := []byte("this is not a movie file at all, not even close")
	_, err := NewFile(bytes.NewReader(contents), int64(len(contents)))
	if !errors.Is(err, ErrNotMP4) {
		t.Fatalf("err=%v, want ErrNotMP4", err)
	}
}

func TestCo64Offsets(t *testing.T) {
	body := be32(1)
	body = append(body, binary.BigEndian.AppendUint64(nil, 1<<33)...)
	var table sampleTable
	parseCo64(fullBoxPayload(0, body), &table)
	if len(table.chunkOffsets) != 1 || table.chunkOffsets[0] != 1<<33 {
		t.Errorf("offsets=%v, want [%d]", table.chunkOffsets, int64(1)<<33)
	}
}

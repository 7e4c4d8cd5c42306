package mp4meta

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

func parseTrak(buffer []byte) (*Track, error) {
	track := &Track{}
	var offset int64
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 {
			break
		}
		payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
		switch boxType {
		case "tkhd":
			parseTkhd(payload, track)
		case "mdia":
			if err := parseMdia(payload, track); err != nil {
				return nil, err
			}
		}
		offset += boxSize
	}
	if track.Handler == "" && track.Kind == "" {
		return nil, fmt.Errorf("trak box has no handler")
	}
	return track, nil
}

// parseTkhd reads the 16.16 fixed-point presentation dimensions at the tail
// of the track header.
func parseTkhd(payload []byte, track *Track) {
	dimensionOffset := 76 // version 0
	if len(payload) > 0 && payload[0] == 1 {
		dimensionOffset = 88
	}
	if len(payload) < dimensionOffset+8 {
		return
	}
	track.Width = int(binary.BigEndian.Uint32(payload[dimensionOffset:dimensionOffset+4]) >> 16)
	track.Height = int(binary.BigEndian.Uint32(payload[dimensionOffset+4:dimensionOffset+8]) >> 16)
}

func parseMdia(buffer []byte, track *Track) error {
	var timescale uint32
	var durationTicks uint64
	var offset int64
	var table sampleTable
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 {
			break
		}
		payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
		switch boxType {
		case "mdhd":
			timescale, durationTicks = parseMdhd(payload)
		case "hdlr":
			track.Kind, track.Handler = parseHdlr(payload)
		case "minf":
			if err := parseMinf(payload, &table); err != nil {
				return err
			}
		}
		offset += boxSize
	}
	if timescale == 0 {
		return fmt.Errorf("track %q has no timescale", track.Handler)
	}
	track.Duration = scaledDuration(durationTicks, timescale)
	samples, err := table.build(timescale)
	if err != nil {
		return fmt.Errorf("track %q: %w", track.Handler, err)
	}
	track.Samples = samples
	return nil
}

func parseMdhd(payload []byte) (timescale uint32, duration uint64) {
	if len(payload) < 24 {
		return 0, 0
	}
	if payload[0] == 1 {
		if len(payload) < 32 {
			return 0, 0
		}
		return binary.BigEndian.Uint32(payload[20:24]), binary.BigEndian.Uint64(payload[24:32])
	}
	return binary.BigEndian.Uint32(payload[12:16]), uint64(binary.BigEndian.Uint32(payload[16:20]))
}

// parseHdlr returns the handler type and the component name.  The name is
// a C string in ISO files but a counted string in QuickTime-style files;
// both forms appear in camera output.
func parseHdlr(payload []byte) (kind, name string) {
	if len(payload) < 24 {
		return "", ""
	}
	kind = string(payload[8:12])
	raw := payload[24:]
	if len(raw) > 1 && int(raw[0]) == len(raw)-1 {
		raw = raw[1:]
	}
	return kind, strings.TrimRight(string(raw), "\x00")
}

func parseMinf(buffer []byte, table *sampleTable) error {
	var offset int64
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 {
			break
		}
		if boxType == "stbl" {
			payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
			if err := parseStbl(payload, table); err != nil {
				return err
			}
		}
		offset += boxSize
	}
	return nil
}

// sampleTable collects the stbl sub-boxes needed to reconstruct the flat
// sample list.
type sampleTable struct {
	durations    []uint32 // per sample, expanded from stts
	uniformSize  uint32   // stsz sample_size when non-zero
	sizes        []uint32 // per sample otherwise
	chunkOffsets []int64  // stco or co64
	chunkRuns    []chunkRun
}

type chunkRun struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

func parseStbl(buffer []byte, table *sampleTable) error {
	var offset int64
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 {
			break
		}
		payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
		switch boxType {
		case "stts":
			parseStts(payload, table)
		case "stsz":
			parseStsz(payload, table)
		case "stsc":
			parseStsc(payload, table)
		case "stco":
			parseStco(payload, table)
		case "co64":
			parseCo64(payload, table)
		}
		offset += boxSize
	}
	return nil
}

func parseStts(payload []byte, table *sampleTable) {
	if len(payload) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(payload[4:8])
	offset := 8
	for i := uint32(0); i < entryCount && offset+8 <= len(payload); i++ {
		sampleCount := binary.BigEndian.Uint32(payload[offset : offset+4])
		delta := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
		for j := uint32(0); j < sampleCount; j++ {
			table.durations = append(table.durations, delta)
		}
		offset += 8
	}
}

func parseStsz(payload []byte, table *sampleTable) {
	if len(payload) < 12 {
		return
	}
	table.uniformSize = binary.BigEndian.Uint32(payload[4:8])
	if table.uniformSize != 0 {
		return
	}
	sampleCount := binary.BigEndian.Uint32(payload[8:12])
	offset := 12
	for i := uint32(0); i < sampleCount && offset+4 <= len(payload); i++ {
		table.sizes = append(table.sizes, binary.BigEndian.Uint32(payload[offset:offset+4]))
		offset += 4
	}
}

func parseStsc(payload []byte, table *sampleTable) {
	if len(payload) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(payload[4:8])
	offset := 8
	for i := uint32(0); i < entryCount && offset+12 <= len(payload); i++ {
		table.chunkRuns = append(table.chunkRuns, chunkRun{
			firstChunk:      binary.BigEndian.Uint32(payload[offset : offset+4]),
			samplesPerChunk: binary.BigEndian.Uint32(payload[offset+4 : offset+8]),
		})
		offset += 12
	}
}

func parseStco(payload []byte, table *sampleTable) {
	if len(payload) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(payload[4:8])
	offset := 8
	for i := uint32(0); i < entryCount && offset+4 <= len(payload); i++ {
		table.chunkOffsets = append(table.chunkOffsets, int64(binary.BigEndian.Uint32(payload[offset:offset+4])))
		offset += 4
	}
}

func parseCo64(payload []byte, table *sampleTable) {
	if len(payload) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(payload[4:8])
	offset := 8
	for i := uint32(0); i < entryCount && offset+8 <= len(payload); i++ {
		table.chunkOffsets = append(table.chunkOffsets, int64(binary.BigEndian.Uint64(payload[offset:offset+8])))
		offset += 8
	}
}

// build expands the chunk-relative tables into a flat, ordered sample list.
func (t *sampleTable) build(timescale uint32) ([]Sample, error) {
	if len(t.chunkOffsets) == 0 || len(t.durations) == 0 {
		return nil, nil
	}

	sampleSize := func(index int) (int64, error) {
		if t.uniformSize != 0 {
			return int64(t.uniformSize), nil
		}
		if index >= len(t.sizes) {
			return 0, fmt.Errorf("sample %d has no size entry", index)
		}
		return int64(t.sizes[index]), nil
	}

	samplesInChunk := func(chunk int) uint32 {
		count := uint32(1)
		for _, run := range t.chunkRuns {
			if int(run.firstChunk) <= chunk+1 {
				count = run.samplesPerChunk
			}
		}
		return count
	}

	samples := []Sample{}
	var elapsed uint64
	sampleIndex := 0
	for chunk := range t.chunkOffsets {
		chunkOffset := t.chunkOffsets[chunk]
		count := samplesInChunk(chunk)
		for i := uint32(0); i < count && sampleIndex < len(t.durations); i++ {
			size, err := sampleSize(sampleIndex)
			if err != nil {
				return nil, err
			}
			duration := t.durations[sampleIndex]
			samples = append(samples, Sample{
				Offset:   chunkOffset,
				Size:     size,
				Time:     ticksToDuration(elapsed, timescale),
				Duration: ticksToDuration(uint64(duration), timescale),
			})
			chunkOffset += size
			elapsed += uint64(duration)
			sampleIndex++
		}
	}
	return samples, nil
}

func ticksToDuration(ticks uint64, timescale uint32) time.Duration {
	return time.Duration(ticks) * time.Second / time.Duration(timescale)
}

func parseUdta(buffer []byte) []UserField {
	fields := []UserField{}
	var offset int64
	for offset+8 <= int64(len(buffer)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buffer, offset)
		if boxSize <= 0 || boxSize < headerSize {
			break
		}
		payload := sliceBox(buffer, offset+headerSize, boxSize-headerSize)
		fields = append(fields, UserField{
			Name: boxType,
			Data: append([]byte{}, payload...),
		})
		offset += boxSize
	}
	return fields
}

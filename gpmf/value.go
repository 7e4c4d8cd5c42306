package gpmf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// typeWidth returns the byte width of one element of a basic type, or 0 for
// types without a fixed scalar width (nested, complex, ASCII treated as text).
func typeWidth(typeCode byte) int {
	switch typeCode {
	case TypeInt8, TypeUint8, TypeASCII:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeFourCC, TypeQ1516:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64, TypeQ3132:
		return 8
	case TypeGUID, TypeUTC:
		return 16
	}
	return 0
}

// decodeScalar decodes one big-endian element of a basic type.
func decodeScalar(typeCode byte, buffer []byte) interface{} {
	switch typeCode {
	case TypeInt8:
		return int8(buffer[0])
	case TypeUint8:
		return buffer[0]
	case TypeInt16:
		return int16(binary.BigEndian.Uint16(buffer))
	case TypeUint16:
		return binary.BigEndian.Uint16(buffer)
	case TypeInt32:
		return int32(binary.BigEndian.Uint32(buffer))
	case TypeUint32:
		return binary.BigEndian.Uint32(buffer)
	case TypeInt64:
		return int64(binary.BigEndian.Uint64(buffer))
	case TypeUint64:
		return binary.BigEndian.Uint64(buffer)
	case TypeFloat32:
		return math.Float32frombits(binary.BigEndian.Uint32(buffer))
	case TypeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(buffer))
	case TypeQ1516:
		return float64(int32(binary.BigEndian.Uint32(buffer))) / 65536.0
	case TypeQ3132:
		return float64(int64(binary.BigEndian.Uint64(buffer))) / 4294967296.0
	case TypeFourCC:
		return string(buffer[0:4])
	case TypeASCII:
		return string(buffer[0:1])
	case TypeUTC:
		return string(buffer[0:16])
	case TypeGUID:
		return append([]byte{}, buffer[0:16]...)
	}
	return nil
}

// Values decodes the payload into one tuple per repeat unit.  For basic
// types each tuple holds Size/width scalars; for complex types the layout
// of one repeat unit follows the template string from the sibling TYPE
// entry (pass "" for basic types).
func (e *Entry) Values(template string) ([][]interface{}, error) {
	if e.IsContainer() {
		return nil, fmt.Errorf("entry %q is a container, not a value", e.Key)
	}
	if e.Type == TypeComplex {
		return e.complexValues(template)
	}
	if !KnownType(e.Type) {
		return nil, fmt.Errorf("entry %q: %w: 0x%02x", e.Key, ErrUnknownTypeCode, e.Type)
	}

	// Text payloads decode as one string per repeat unit.
	if e.Type == TypeASCII {
		values := make([][]interface{}, 0, e.Count)
		for i := 0; i < int(e.Count); i++ {
			chunk := e.Raw[i*int(e.Size) : (i+1)*int(e.Size)]
			values = append(values, []interface{}{strings.TrimRight(string(chunk), "\x00")})
		}
		return values, nil
	}

	width := typeWidth(e.Type)
	if width == 0 || int(e.Size)%width != 0 {
		return nil, fmt.Errorf("entry %q: element size %d does not fit type %q", e.Key, e.Size, string(e.Type))
	}
	fields := int(e.Size) / width

	values := make([][]interface{}, 0, e.Count)
	for i := 0; i < int(e.Count); i++ {
		tuple := make([]interface{}, 0, fields)
		for j := 0; j < fields; j++ {
			start := i*int(e.Size) + j*width
			tuple = append(tuple, decodeScalar(e.Type, e.Raw[start:start+width]))
		}
		values = append(values, tuple)
	}
	return values, nil
}

// complexValues decodes one repeat unit per template pass.  Each character
// of the template is a basic type code for the next field.
func (e *Entry) complexValues(template string) ([][]interface{}, error) {
	if template == "" {
		return nil, fmt.Errorf("entry %q: complex payload without a type template", e.Key)
	}

	unitSize := 0
	for i := 0; i < len(template); i++ {
		width := typeWidth(template[i])
		if width == 0 {
			return nil, fmt.Errorf("entry %q: type template %q contains unsupported code %q", e.Key, template, string(template[i]))
		}
		unitSize += width
	}
	if unitSize != int(e.Size) {
		return nil, fmt.Errorf("entry %q: type template %q describes %d bytes but element size is %d", e.Key, template, unitSize, e.Size)
	}

	values := make([][]interface{}, 0, e.Count)
	for i := 0; i < int(e.Count); i++ {
		tuple := make([]interface{}, 0, len(template))
		offset := i * int(e.Size)
		for j := 0; j < len(template); j++ {
			width := typeWidth(template[j])
			tuple = append(tuple, decodeScalar(template[j], e.Raw[offset:offset+width]))
			offset += width
		}
		values = append(values, tuple)
	}
	return values, nil
}

// FloatRows decodes the payload into float64 tuples.  Non-numeric fields
// (FourCC, text) fail the conversion.
func (e *Entry) FloatRows(template string) ([][]float64, error) {
	values, err := e.Values(template)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, 0, len(values))
	for _, tuple := range values {
		row := make([]float64, 0, len(tuple))
		for _, value := range tuple {
			number, err := cast.ToFloat64E(value)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %v", e.Key, err)
			}
			row = append(row, number)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// First returns the first decoded scalar of the payload, or nil.
func (e *Entry) First() interface{} {
	values, err := e.Values("")
	if err != nil || len(values) == 0 || len(values[0]) == 0 {
		return nil
	}
	return values[0][0]
}

// AsString returns the payload as trimmed text.  Intended for ASCII and
// FourCC entries; other types format via their decoded first value.
func (e *Entry) AsString() string {
	if e.Type == TypeASCII {
		return strings.TrimRight(string(e.Raw), "\x00")
	}
	return strings.TrimRight(cast.ToString(e.First()), "\x00")
}

// AsUint returns the first payload value as an unsigned integer.
func (e *Entry) AsUint() (uint64, error) {
	return cast.ToUint64E(e.First())
}

// AsTime parses a UTC datetime payload ("yymmddhhmmss.sss").
func (e *Entry) AsTime() (time.Time, error) {
	text := strings.TrimRight(string(e.Raw), "\x00")
	parsed, err := time.Parse("060102150405.000", text)
	if err != nil {
		return time.Time{}, fmt.Errorf("entry %q: could not parse datetime %q: %w", e.Key, text, err)
	}
	return parsed, nil
}

// Scale decodes a SCAL entry into its divisor vector.
func (e *Entry) Scale() ([]float64, error) {
	rows, err := e.FloatRows("")
	if err != nil {
		return nil, err
	}
	divisors := []float64{}
	for _, row := range rows {
		divisors = append(divisors, row...)
	}
	return divisors, nil
}

// applyScale divides rows element-wise by the scale vector.  A single
// divisor applies to every field; a vector applies per field position.
// A zero divisor fails with ErrInvalidScale and leaves the corresponding
// values unscaled rather than aborting.
func applyScale(rows [][]float64, scale []float64) ([][]float64, error) {
	if len(scale) == 0 {
		return rows, nil
	}

	var invalid error
	scaled := make([][]float64, 0, len(rows))
	for _, row := range rows {
		out := make([]float64, len(row))
		for i, value := range row {
			divisor := scale[0]
			if len(scale) > 1 && i < len(scale) {
				divisor = scale[i]
			}
			if divisor == 0 {
				invalid = ErrInvalidScale
				out[i] = value
				continue
			}
			out[i] = value / divisor
		}
		scaled = append(scaled, out)
	}
	return scaled, invalid
}

package gpmf

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestValuesScalarTypes(t *testing.T) {
	tests := []struct {
		name     string
		typeCode byte
		size     int
		payload  []byte
		want     float64
	}{
		{"int8", TypeInt8, 1, []byte{0xfb}, -5},
		{"uint8", TypeUint8, 1, []byte{0xc8}, 200},
		{"int16", TypeInt16, 2, beInt16s(-1000), -1000},
		{"uint16", TypeUint16, 2, binary.BigEndian.AppendUint16(nil, 50000), 50000},
		{"int32", TypeInt32, 4, beInt32s(-100000), -100000},
		{"uint32", TypeUint32, 4, beUint32(3000000000), 3000000000},
		{"int64", TypeInt64, 8, binary.BigEndian.AppendUint64(nil, ^uint64(0)), -1},
		{"uint64", TypeUint64, 8, binary.BigEndian.AppendUint64(nil, 1<<40), 1 << 40},
		{"float32", TypeFloat32, 4, binary.BigEndian.AppendUint32(nil, math.Float32bits(1.5)), 1.5},
		{"float64", TypeFloat64, 8, binary.BigEndian.AppendUint64(nil, math.Float64bits(-2.25)), -2.25},
		{"q15.16", TypeQ1516, 4, beUint32(0x00018000), 1.5},
		{"q31.32", TypeQ3132, 8, binary.BigEndian.AppendUint64(nil, 0x0000000280000000), 2.5},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entries, err := Parse(klvLeaf("TSTV", test.typeCode, test.size, 1, test.payload))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			rows, err := entries[0].FloatRows("")
			if err != nil {
				t.Fatalf("FloatRows: %v", err)
			}
			if len(rows) != 1 || len(rows[0]) != 1 {
				t.Fatalf("rows=%dx%d, want 1x1", len(rows), len(rows[0]))
			}
			if rows[0][0] != test.want {
				t.Errorf("value=%v, want %v", rows[0][0], test.want)
			}
		})
	}
}

func TestValuesMultiFieldTuples(t *testing.T) {
	entries, err := Parse(klvLeaf("GYRO", TypeInt32, 8, 2, beInt32s(1, 2, 3, 4)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	values, err := entries[0].Values("")
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(values) != 2 || len(values[0]) != 2 {
		t.Fatalf("values=%dx%d, want 2x2", len(values), len(values[0]))
	}
	if values[1][0] != int32(3) {
		t.Errorf("values[1][0]=%v, want int32(3)", values[1][0])
	}
}

func TestComplexValues(t *testing.T) {
	payload := beUint32(10)
	payload = append(payload, beInt16s(-3)...)
	payload = append(payload, beUint32(20)...)
	payload = append(payload, beInt16s(5)...)

	entries, err := Parse(klvLeaf("CPLX", TypeComplex, 6, 2, payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry := entries[0]

	values, err := entry.Values("Ls")
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(values) != 2 || len(values[0]) != 2 {
		t.Fatalf("values=%dx%d, want 2x2", len(values), len(values[0]))
	}
	if values[0][0] != uint32(10) || values[0][1] != int16(-3) {
		t.Errorf("values[0]=%v, want [10 -3]", values[0])
	}
	if values[1][0] != uint32(20) || values[1][1] != int16(5) {
		t.Errorf("values[1]=%v, want [20 5]", values[1])
	}

	if _, err := entry.Values(""); err == nil {
		t.Errorf("expected an error without a type template")
	}
	if _, err := entry.Values("LL"); err == nil {
		t.Errorf("expected an error for a template that does not fit the element size")
	}
}

func TestApplyScale(t *testing.T) {
	rows := [][]float64{{100, 200}}

	scaled, err := applyScale(rows, []float64{10})
	if err != nil {
		t.Fatalf("single divisor: %v", err)
	}
	if scaled[0][0] != 10 || scaled[0][1] != 20 {
		t.Errorf("single divisor=%v, want [10 20]", scaled[0])
	}

	scaled, err = applyScale(rows, []float64{10, 100})
	if err != nil {
		t.Fatalf("vector divisor: %v", err)
	}
	if scaled[0][0] != 10 || scaled[0][1] != 2 {
		t.Errorf("vector divisor=%v, want [10 2]", scaled[0])
	}

	scaled, err = applyScale(rows, []float64{0, 100})
	if !errors.Is(err, ErrInvalidScale) {
		t.Fatalf("err=%v, want ErrInvalidScale", err)
	}
	if scaled[0][0] != 100 {
		t.Errorf("zero divisor left value=%v, want the unscaled 100", scaled[0][0])
	}
	if scaled[0][1] != 2 {
		t.Errorf("valid divisor alongside zero=%v, want 2", scaled[0][1])
	}

	// The source rows are never mutated.
	if rows[0][0] != 100 {
		t.Errorf("source row mutated to %v", rows[0][0])
	}
}

func TestAsTime(t *testing.T) {
	entries, err := Parse(klvLeaf(KeyGPSTime, TypeUTC, 16, 1, []byte("241231235959.999")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := entries[0].AsTime()
	if err != nil {
		t.Fatalf("AsTime: %v", err)
	}
	want := time.Date(2024, time.December, 31, 23, 59, 59, 999000000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("time=%v, want %v", got, want)
	}
}

func TestAsStringTrimsPadding(t *testing.T) {
	entries, err := Parse(klvLeaf(KeyStreamName, TypeASCII, 8, 1, []byte("Gyro\x00\x00\x00\x00")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := entries[0].AsString(); got != "Gyro" {
		t.Errorf("AsString=%q, want %q", got, "Gyro")
	}
}

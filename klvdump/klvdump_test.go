package klvdump

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tekkamanendless/gopro-telemetry-processor/gpmf"
)

func TestWrite(t *testing.T) {
	entries := []*gpmf.Entry{
		{
			Key:  gpmf.KeyDevice,
			Type: gpmf.TypeNested,
			Children: []*gpmf.Entry{
				{Key: gpmf.KeyStreamName, Type: gpmf.TypeASCII, Size: 4, Count: 1, Raw: []byte("Accl")},
				{Key: "ACCL", Type: gpmf.TypeInt16, Size: 2, Count: 2, Raw: []byte{0x00, 0x64, 0x00, 0xc8}},
			},
		},
	}

	var out bytes.Buffer
	if err := Write(&out, entries, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	text := out.String()

	if !strings.Contains(text, "DEVC (container, 2 children)") {
		t.Errorf("missing container line in:\n%s", text)
	}
	if !strings.Contains(text, "ACCL type=s size=2 count=2") {
		t.Errorf("missing leaf header line in:\n%s", text)
	}
	if !strings.Contains(text, "0064 00c8") && !strings.Contains(text, "006400c8") {
		t.Errorf("missing hex preview in:\n%s", text)
	}
	if !strings.Contains(text, " A c c l") {
		t.Errorf("missing ASCII preview in:\n%s", text)
	}
}

func TestWriteByteLimit(t *testing.T) {
	entries := []*gpmf.Entry{
		{Key: "GYRO", Type: gpmf.TypeInt16, Size: 2, Count: 8, Raw: make([]byte, 16)},
	}

	var out bytes.Buffer
	if err := Write(&out, entries, 4); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(out.String(), "(+12 more)") {
		t.Errorf("missing truncation marker in:\n%s", out.String())
	}
}

func TestWriteUnknownType(t *testing.T) {
	entries := []*gpmf.Entry{
		{Key: "XXXX", Type: 0x99, Size: 1, Count: 1, Raw: []byte{0x01}},
	}

	var out bytes.Buffer
	if err := Write(&out, entries, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(out.String(), "type=0x99") {
		t.Errorf("unknown type not rendered as hex in:\n%s", out.String())
	}
}

// Package klvdump renders a decoded KLV entry tree for inspection, with a
// short hex-and-ASCII preview of each payload.
package klvdump

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tekkamanendless/gopro-telemetry-processor/gpmf"
)

// Print writes the entry tree to standard output.
func Print(entries []*gpmf.Entry, byteLimit int) error {
	return Write(os.Stdout, entries, byteLimit)
}

// Write renders each entry as one line of key, type, size, count, and a
// payload preview of at most byteLimit bytes (0 means no limit), with
// children indented below their container.
func Write(out io.Writer, entries []*gpmf.Entry, byteLimit int) error {
	for _, entry := range entries {
		if err := writeEntry(out, entry, 0, byteLimit); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(out io.Writer, entry *gpmf.Entry, depth, byteLimit int) error {
	indent := strings.Repeat("  ", depth)
	if entry.IsContainer() {
		_, err := fmt.Fprintf(out, "%s%s (container, %d children)\n", indent, entry.Key, len(entry.Children))
		if err != nil {
			return err
		}
		for _, child := range entry.Children {
			if err := writeEntry(out, child, depth+1, byteLimit); err != nil {
				return err
			}
		}
		return nil
	}

	typeLabel := fmt.Sprintf("%c", entry.Type)
	if !gpmf.KnownType(entry.Type) {
		typeLabel = fmt.Sprintf("0x%02x", entry.Type)
	}
	_, err := fmt.Fprintf(out, "%s%s type=%s size=%d count=%d\n", indent, entry.Key, typeLabel, entry.Size, entry.Count)
	if err != nil {
		return err
	}

	buffer := entry.Raw
	truncated := false
	if byteLimit > 0 && len(buffer) > byteLimit {
		buffer = buffer[:byteLimit]
		truncated = true
	}
	if len(buffer) == 0 {
		return nil
	}

	for line := 0; line < 2; line++ {
		fmt.Fprintf(out, "%s  ", indent)
		for _, currentByte := range buffer {
			switch line {
			case 0:
				if currentByte < ' ' || currentByte > '~' {
					fmt.Fprintf(out, "..")
				} else {
					fmt.Fprintf(out, " %c", currentByte)
				}
			case 1:
				fmt.Fprintf(out, "%02x", currentByte)
			}
		}
		if truncated && line == 1 {
			fmt.Fprintf(out, " (+%d more)", len(entry.Raw)-len(buffer))
		}
		fmt.Fprintf(out, "\n")
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/tekkamanendless/gopro-telemetry-processor/gopro"
)

func main() {
	filename := os.Args[1]

	clip, err := gopro.ParseClip(filename)
	if err != nil {
		fmt.Printf("Could not parse file '%s': %v\n", filename, err)
		os.Exit(1)
	}

	fmt.Printf("Device: %s\n", clip.Device)
	fmt.Printf("Firmware: %s\n", clip.Firmware)
	fmt.Printf("Start: %v\n", clip.Start)
	fmt.Printf("Duration: %v\n", clip.Duration)

	streams := clip.Streams.Streams()
	fmt.Printf("Streams: (%d)\n", len(streams))
	for i, stream := range streams {
		fmt.Printf("   %d. %s\n", i, stream.DataKey)
	}

	for _, stream := range streams {
		fmt.Printf("Stream: %s\n", stream.DataKey)
		fmt.Printf("   Samples: %d\n", len(stream.Samples))
	}

	fmt.Printf("GPS points: %d\n", len(clip.GPS.Points))
}

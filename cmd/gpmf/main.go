package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tekkamanendless/gopro-telemetry-processor/gopro"
	"github.com/tekkamanendless/gopro-telemetry-processor/gpmf"
	"github.com/tekkamanendless/gopro-telemetry-processor/klvdump"
	"github.com/tekkamanendless/gopro-telemetry-processor/mp4meta"
)

func main() {
	debugValue := false

	var rootCommand = &cobra.Command{
		Use:   "gpmf",
		Short: "GoPro telemetry processor",
		Long: `
This tool reads the telemetry track that GoPro cameras embed in their MP4 (and LRV) recordings.
`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugValue {
				gpmf.SetLogLevel(logrus.DebugLevel)
				gopro.SetLogLevel(logrus.DebugLevel)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(1)
		},
	}
	rootCommand.PersistentFlags().BoolVar(&debugValue, "debug", false, "Enable debug output")

	{
		dumpValue := false
		noSamplesValue := false
		var infoCommand = &cobra.Command{
			Use:   "info <filename> [...]",
			Short: "Show the information from the given file(s)",
			Long: `
The output here isn't particularly pretty, but it should be enough for you to do whatever you need to do with the files.

For a more aggressive output, use the --dump flag.
`,
			Args: cobra.MinimumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				for _, filename := range args {
					fmt.Printf("File: %s\n", filename)

					if noSamplesValue {
						file, err := mp4meta.Open(filename)
						if err != nil {
							fmt.Printf("Error: %v\n", err)
							continue
						}
						printContainerInfo(file.Info)
						if dumpValue {
							spew.Dump(file.Info)
						}
						file.Close()
						continue
					}

					clip, err := gopro.ParseClip(filename)
					if err != nil {
						fmt.Printf("Error: %v\n", err)
						continue
					}
					printClipInfo(clip)

					if dumpValue {
						spew.Dump(clip)
					}
				}
			},
		}
		infoCommand.Flags().BoolVar(&dumpValue, "dump", false, "Dump out everything about the file")
		infoCommand.Flags().BoolVar(&noSamplesValue, "no-samples", false, "Only read the container metadata; skip the telemetry samples")
		rootCommand.AddCommand(infoCommand)
	}

	{
		var streamsCommand = &cobra.Command{
			Use:   "streams <filename>",
			Short: "List the sensor streams in the given file",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				clip, err := gopro.ParseClip(args[0])
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				for _, stream := range clip.Streams.Streams() {
					fmt.Printf("Stream: %s\n", stream.DataKey)
					fmt.Printf("   Name: %s\n", stream.Name)
					if stream.Units != "" {
						fmt.Printf("   Units: %s\n", stream.Units)
					}
					if stream.Opaque {
						fmt.Printf("   Samples: (opaque; raw payload only)\n")
					} else {
						fmt.Printf("   Samples: %d\n", len(stream.Samples))
					}
				}
			},
		}
		rootCommand.AddCommand(streamsCommand)
	}

	{
		var minFix uint32
		var maxDOP float64
		var gpsCommand = &cobra.Command{
			Use:   "gps <filename>",
			Short: "Show the GPS track from the given file",
			Long: `
Each line is one GPS point.  Points from a weak fix can be filtered out with --min-fix and --max-dop.
`,
			Args: cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				clip, err := gopro.ParseClip(args[0])
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				track := clip.GPS.Prune(minFix, maxDOP)
				fmt.Printf("Points: %d (of %d)\n", len(track.Points), len(clip.GPS.Points))
				for _, point := range track.Points {
					fmt.Printf("%v lat=%0.7f lon=%0.7f alt=%0.2f speed=%0.2f fix=%d dop=%0.2f\n",
						point.Time, point.Latitude, point.Longitude, point.Altitude, point.Speed2D, point.Fix, point.DOP)
				}
			},
		}
		gpsCommand.Flags().Uint32Var(&minFix, "min-fix", 0, "Drop points below this GPS fix (2 for 2D, 3 for 3D); use 0 for no limit")
		gpsCommand.Flags().Float64Var(&maxDOP, "max-dop", 0, "Drop points above this dilution of precision; use 0 for no limit")
		rootCommand.AddCommand(gpsCommand)
	}

	{
		skipOnError := false
		workers := 0
		var sessionsCommand = &cobra.Command{
			Use:   "sessions <directory>",
			Short: "Group the recordings in a directory into sessions",
			Long: `
GoPro cameras split long recordings into chapter files and often write a low-resolution proxy next to each one.
This groups all of that back into sessions, one per actual recording.
`,
			Args: cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				paths, err := findRecordings(args[0])
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				if len(paths) == 0 {
					fmt.Printf("No recordings found.\n")
					os.Exit(1)
				}

				options := gopro.AssembleOptions{
					Workers:     workers,
					SkipOnError: skipOnError,
					Progress: func(done, total int) {
						fmt.Printf("\rParsed %d/%d files...", done, total)
					},
				}
				sessions, skipped, err := gopro.AssembleSessions(context.Background(), paths, options)
				fmt.Printf("\n")
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}

				for i, session := range sessions {
					fmt.Printf("Session %d: %v (%v)\n", i, session.Start.Local(), session.Duration)
					for _, clip := range session.Clips {
						fmt.Printf("   File: %s\n", clip.Path)
						if clip.LowResPath != "" {
							fmt.Printf("      Proxy: %s\n", clip.LowResPath)
						}
					}
					for _, stream := range session.Streams {
						fmt.Printf("   Stream: %s (%d samples)\n", stream.DataKey, len(stream.Samples))
					}
					fmt.Printf("   GPS points: %d\n", len(session.GPS.Points))
				}
				for _, skip := range skipped {
					fmt.Printf("Skipped: %s (%v)\n", skip.Path, skip.Err)
				}
			},
		}
		sessionsCommand.Flags().BoolVar(&skipOnError, "skip-on-error", false, "Skip files that cannot be parsed instead of stopping")
		sessionsCommand.Flags().IntVar(&workers, "workers", 0, "The number of files to parse at once; use 0 for one per CPU")
		rootCommand.AddCommand(sessionsCommand)
	}

	{
		var exportCommand = &cobra.Command{
			Use:   "export",
			Short: "Export telemetry from a file",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Help()
				os.Exit(1)
			},
		}
		rootCommand.AddCommand(exportCommand)

		{
			var minFix uint32
			var maxDOP float64
			lineString := false
			var exportGeojsonCommand = &cobra.Command{
				Use:   "geojson <input-file-or-directory> <output-file>",
				Short: "Export a GPS track as GeoJSON",
				Long: `
Given a directory, the recordings are grouped into sessions first and every session's track is exported.
`,
				Args: cobra.ExactArgs(2),
				Run: func(cmd *cobra.Command, args []string) {
					inputPath := args[0]
					destinationFilename := args[1]

					tracks, err := collectTracks(inputPath)
					if err != nil {
						fmt.Printf("Error: %v\n", err)
						os.Exit(1)
					}

					collection := geojson.NewFeatureCollection()
					pointTotal := 0
					for _, track := range tracks {
						track = track.Prune(minFix, maxDOP)
						pointTotal += len(track.Points)
						if lineString {
							lineFeature := trackLineFeature(track)
							if lineFeature != nil {
								collection.Append(lineFeature)
							}
							continue
						}
						for _, point := range track.Points {
							feature := geojson.NewFeature(orb.Point{point.Longitude, point.Latitude})
							feature.Properties["altitude"] = point.Altitude
							feature.Properties["speed"] = point.Speed2D
							feature.Properties["time"] = point.Time.Seconds()
							if !point.UTC.IsZero() {
								feature.Properties["utc"] = point.UTC
							}
							collection.Append(feature)
						}
					}
					if pointTotal == 0 {
						fmt.Printf("Could not find any GPS data.\n")
						os.Exit(1)
					}

					contents, err := json.Marshal(collection)
					if err != nil {
						fmt.Printf("Couldn't encode GeoJSON: %v\n", err)
						os.Exit(1)
					}
					if err := os.WriteFile(destinationFilename, contents, 0644); err != nil {
						fmt.Printf("Couldn't write output file: %v\n", err)
						os.Exit(1)
					}
					fmt.Printf("Exported %d points.\n", pointTotal)
				},
			}
			exportGeojsonCommand.Flags().Uint32Var(&minFix, "min-fix", 2, "Drop points below this GPS fix; use 0 for no limit")
			exportGeojsonCommand.Flags().Float64Var(&maxDOP, "max-dop", 0, "Drop points above this dilution of precision; use 0 for no limit")
			exportGeojsonCommand.Flags().BoolVar(&lineString, "line", false, "Export one line string per session instead of individual points")
			exportCommand.AddCommand(exportGeojsonCommand)
		}
	}

	{
		var byteLimit int
		var debugCommand = &cobra.Command{
			Use:   "debug <filename> <sample>",
			Short: "Show debug information from the given file",
			Long: `
This decodes a single telemetry sample and prints the raw KLV entry tree.
`,
			Args: cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				filename := args[0]

				sampleIndex := 0
				{
					value, err := strconv.ParseInt(args[1], 10, 64)
					if err != nil {
						panic(err)
					}
					sampleIndex = int(value)
				}

				file, err := mp4meta.Open(filename)
				if err != nil {
					panic(fmt.Sprintf("Error: %v\n", err))
				}
				defer file.Close()

				track := file.Track(gopro.MetadataHandler)
				if track == nil {
					panic(fmt.Sprintf("No telemetry track in %s", filename))
				}
				fmt.Printf("Samples: %d\n", len(track.Samples))
				if sampleIndex < 0 || sampleIndex >= len(track.Samples) {
					panic(fmt.Sprintf("Invalid sample index: %d", sampleIndex))
				}

				buffer, err := file.ReadSample(track.Samples[sampleIndex])
				if err != nil {
					panic(fmt.Sprintf("Error: %v\n", err))
				}
				entries, err := gpmf.Parse(buffer)
				if err != nil {
					fmt.Printf("Warning: %v\n", err)
				}
				klvdump.Print(entries, byteLimit)
			},
		}
		debugCommand.Flags().IntVar(&byteLimit, "byte-limit", 120, "The number of bytes to print (when printing raw data); use 0 for no limit")
		rootCommand.AddCommand(debugCommand)
	}

	err := rootCommand.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// printContainerInfo prints a summary of the container metadata alone.
func printContainerInfo(info *mp4meta.Info) {
	if firmware := info.Firmware(); firmware != "" {
		fmt.Printf("Firmware: %s\n", firmware)
		if device := gopro.DeviceModel(firmware); device != "" {
			fmt.Printf("Device: %s\n", device)
		}
	}
	fmt.Printf("Created: %v\n", info.Creation)
	fmt.Printf("Duration: %v\n", info.Duration)
	fmt.Printf("Tracks: (%d)\n", len(info.Tracks))
	for i, track := range info.Tracks {
		fmt.Printf("   %d. %s (%s), %d samples\n", i, track.Handler, track.Kind, len(track.Samples))
	}
	for _, field := range info.UserData {
		fmt.Printf("User data: %s (%d bytes)\n", field.Name, len(field.Data))
	}
}

// printClipInfo prints a summary of a clip.
func printClipInfo(clip *gopro.Clip) {
	if clip.Device != "" {
		fmt.Printf("Device: %s\n", clip.Device)
	}
	if clip.Firmware != "" {
		fmt.Printf("Firmware: %s\n", clip.Firmware)
	}
	if clip.ResolutionKnown {
		resolution := "low"
		if clip.HighResolution() {
			resolution = "high"
		}
		fmt.Printf("Resolution: %dx%d (%s)\n", clip.Width, clip.Height, resolution)
	}
	fmt.Printf("Start: %v\n", clip.Start)
	fmt.Printf("Duration: %v\n", clip.Duration)
	fmt.Printf("Fingerprint: %016x\n", clip.Fingerprint)
	fmt.Printf("Streams: (%d)\n", len(clip.Streams.Streams()))
	for _, stream := range clip.Streams.Streams() {
		fmt.Printf("   %s: %s (%d samples)\n", stream.DataKey, stream.Name, len(stream.Samples))
	}
	fmt.Printf("GPS points: %d\n", len(clip.GPS.Points))
}

// findRecordings walks a directory for GoPro recording files.
func findRecordings(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".mp4", ".lrv", ".360":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// collectTracks returns one GPS track per session under a directory, or a
// single track for a file.
func collectTracks(inputPath string) ([]gpmf.Track, error) {
	stat, err := os.Stat(inputPath)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		clip, err := gopro.ParseClip(inputPath)
		if err != nil {
			return nil, err
		}
		return []gpmf.Track{clip.GPS}, nil
	}

	paths, err := findRecordings(inputPath)
	if err != nil {
		return nil, err
	}
	sessions, skipped, err := gopro.AssembleSessions(context.Background(), paths, gopro.AssembleOptions{SkipOnError: true})
	if err != nil {
		return nil, err
	}
	for _, skip := range skipped {
		fmt.Printf("Skipped: %s (%v)\n", skip.Path, skip.Err)
	}
	var tracks []gpmf.Track
	for _, session := range sessions {
		tracks = append(tracks, session.GPS)
	}
	return tracks, nil
}

// trackLineFeature renders a track as a single line string with per-point
// times and altitudes in the properties.
func trackLineFeature(track gpmf.Track) *geojson.Feature {
	if len(track.Points) == 0 {
		return nil
	}
	line := make(orb.LineString, 0, len(track.Points))
	times := make([]float64, 0, len(track.Points))
	altitudes := make([]float64, 0, len(track.Points))
	for _, point := range track.Points {
		line = append(line, orb.Point{point.Longitude, point.Latitude})
		times = append(times, point.Time.Seconds())
		altitudes = append(altitudes, point.Altitude)
	}
	feature := geojson.NewFeature(line)
	feature.Properties["times"] = times
	feature.Properties["altitudes"] = altitudes
	if !track.Points[0].UTC.IsZero() {
		feature.Properties["start"] = track.Points[0].UTC
	}
	return feature
}

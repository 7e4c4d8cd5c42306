package gopro

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ExtractOptions controls parallel telemetry extraction.
type ExtractOptions struct {
	// Workers is the number of files parsed concurrently.  Zero means one
	// worker per CPU.
	Workers int

	// SkipOnError keeps going when a file fails to parse; the failure is
	// reported in its ExtractResult instead of aborting the batch.
	SkipOnError bool

	// Progress, when set, is called after each file finishes.
	Progress func(done, total int)
}

// ExtractResult is the outcome for one input file.  Exactly one of Clip
// and Err is set.
type ExtractResult struct {
	Path string
	Clip *Clip
	Err  error
}

// ExtractAll parses the telemetry of every file in parallel.  Results are
// returned in input order regardless of completion order.  Without
// SkipOnError the first failure cancels the remaining work and is
// returned; results for files that finished are still filled in.
func ExtractAll(ctx context.Context, paths []string, options ExtractOptions) ([]ExtractResult, error) {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]ExtractResult, len(paths))
	var done atomic.Int64

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		results[i].Path = path
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			clip, err := ParseClip(path)
			results[i].Clip = clip
			results[i].Err = err
			if options.Progress != nil {
				options.Progress(int(done.Add(1)), len(paths))
			}
			if err != nil && !options.SkipOnError {
				return err
			}
			if err != nil {
				logger.Warnf("Skipping %q: %v", path, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Package memory keeps image decoding inside the container memory limit.
//
// Decoding an original holds its full pixel buffer in memory, and
// regenerating thumbnails for many entries in parallel multiplies that.
// The package does two things about it.
//
// [ConfigureFromEnv] sets the Go memory limit from the container limit so
// the garbage collector works harder before the kernel OOM killer steps in:
//
//   - GOMEMLIMIT: standard Go variable, wins when set
//   - MEMORY_LIMIT: container limit in bytes, usually from the Kubernetes
//     Downward API (resourceFieldRef limits.memory)
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the heap, default 0.80
//
// [Monitor] samples heap usage against that limit. Above the pause mark,
// [Monitor.Wait] blocks callers until usage drops below the resume mark.
// The regenerate command and the refresh endpoint wait on it before
// decoding each original. A nil Monitor never blocks.
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//
//	if err := mon.Wait(ctx); err != nil {
//	    return err
//	}
package memory

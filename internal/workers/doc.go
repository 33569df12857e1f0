/*
Package workers sizes and runs bounded worker pools.

Inside a container the CPU limit is reflected in GOMAXPROCS, while
runtime.NumCPU still reports the host. [Count] derives worker counts from
GOMAXPROCS:

	// Regenerating thumbnails is decode/resize heavy
	n := workers.ForCPU(8)

	// Deleting stored files mostly waits on the filesystem
	n := workers.ForIO(16)

Operators can pin the count with THUMBNAIL_WORKERS; the limit passed by the
caller still applies.

[ForEach] runs a function over a slice with at most n goroutines using
errgroup. Values that are not safe for concurrent use, such as an
imagefield.File, stay confined to the goroutine that handles them.
*/
package workers

package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"thumbnailfield/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
// The rest covers libvips buffers and decoded pixel data outside the heap.
const DefaultRatio = 0.80

// Source values for Result.
const (
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// Result describes what ConfigureFromEnv did.
type Result struct {
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configured reports whether a Go memory limit is in effect.
func (r Result) Configured() bool {
	return r.GoMemLimit > 0
}

// ConfigureFromEnv sets the Go memory limit from MEMORY_LIMIT and
// MEMORY_RATIO unless GOMEMLIMIT is already set. Call it before the first
// large allocation.
func ConfigureFromEnv() Result {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := Result{Source: SourceGoMemLimit}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	limitStr := os.Getenv("MEMORY_LIMIT")
	if limitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, leaving GOMEMLIMIT unset")
		return Result{Source: SourceNone}
	}

	limit, err := parseLimit(limitStr)
	if err != nil {
		logging.Warn("Ignoring MEMORY_LIMIT: %v", err)
		return Result{Source: SourceNone}
	}

	ratio, err := parseRatio(os.Getenv("MEMORY_RATIO"))
	if err != nil {
		logging.Warn("%v, using %.2f", err, DefaultRatio)
	}

	goLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		FormatBytes(goLimit), ratio*100, FormatBytes(limit))

	return Result{
		Source:         SourceMemoryLimit,
		ContainerLimit: limit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

func parseLimit(s string) (int64, error) {
	limit, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid MEMORY_LIMIT %q: %w", s, err)
	}
	if limit <= 0 {
		return 0, fmt.Errorf("MEMORY_LIMIT must be positive, got %d", limit)
	}
	return limit, nil
}

// parseRatio returns DefaultRatio together with an error for values that
// are unparsable or outside (0, 1]. An empty string is not an error.
func parseRatio(s string) (float64, error) {
	if s == "" {
		return DefaultRatio, nil
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DefaultRatio, fmt.Errorf("invalid MEMORY_RATIO %q", s)
	}
	if ratio <= 0 || ratio > 1 {
		return DefaultRatio, fmt.Errorf("MEMORY_RATIO %q out of range (0.0-1.0]", s)
	}
	return ratio, nil
}

// FormatBytes formats b with binary units, e.g. "1.5 GiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}

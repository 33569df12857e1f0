package memory

import (
	"runtime/debug"
	"testing"
)

// restoreMemoryLimit undoes any limit a test sets.
func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"536870912", 536870912, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-100", 0, true},
		{"512Mi", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLimit(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLimit(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"", DefaultRatio, false},
		{"0.5", 0.5, false},
		{"1", 1, false},
		{"0", DefaultRatio, true},
		{"1.5", DefaultRatio, true},
		{"-0.2", DefaultRatio, true},
		{"half", DefaultRatio, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseRatio(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRatio(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseRatio(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{512 * 1024 * 1024, "512.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{1 << 40, "1.0 TiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatBytes(tt.input); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		ratio      string
		wantSource string
		wantGo     int64
	}{
		{"unset", "", "", SourceNone, 0},
		{"invalid limit", "lots", "", SourceNone, 0},
		{"default ratio", "1000000000", "", SourceMemoryLimit, 800000000},
		{"custom ratio", "1000000000", "0.5", SourceMemoryLimit, 500000000},
		{"bad ratio falls back", "1000000000", "2", SourceMemoryLimit, 800000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreMemoryLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()
			if result.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", result.Source, tt.wantSource)
			}
			if result.GoMemLimit != tt.wantGo {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, tt.wantGo)
			}
			if result.Configured() != (tt.wantGo > 0) {
				t.Errorf("Configured() = %v", result.Configured())
			}
			if tt.wantGo > 0 {
				if got := debug.SetMemoryLimit(-1); got != tt.wantGo {
					t.Errorf("runtime memory limit = %d, want %d", got, tt.wantGo)
				}
			}
		})
	}
}

func TestConfigureFromEnvGOMEMLIMITWins(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(256 << 20)
	t.Setenv("GOMEMLIMIT", "256MiB")
	t.Setenv("MEMORY_LIMIT", "1000000000")

	result := ConfigureFromEnv()
	if result.Source != SourceGoMemLimit {
		t.Errorf("Source = %q, want %q", result.Source, SourceGoMemLimit)
	}
	if result.GoMemLimit != 256<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 256<<20)
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/memory"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/startup"
	"thumbnailfield/internal/storage"
	"thumbnailfield/internal/workers"

	"golang.org/x/term"
)

const (
	// Default timeout for the status queries
	defaultTimeout = 30 * time.Second
	// Upper bound on regenerate workers before THUMBNAIL_WORKERS
	defaultMaxWorkers = 8
)

type app struct {
	config *startup.Config
	db     *database.Database
	svc    *entries.Service
	mem    *memory.Monitor
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "regenerate", "purge", "status":
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		// Sanitize command input using allowlist to break taint chain
		sanitized := sanitizeCommand(command)
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitized) //nolint:gosec // G705 - input is sanitized via allowlist in sanitizeCommand
		printUsage()
		os.Exit(1)
	}

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Make sure MEDIA_DIR, DATABASE_DIR and CONFIG_FILE are set correctly")
		os.Exit(1)
	}
	defer a.close()

	var ok bool
	switch command {
	case "regenerate":
		ok = a.regenerate(ctx, os.Args[2:])
	case "purge":
		ok = a.purge(ctx, os.Args[2:], os.Stdin)
	case "status":
		ok = a.status(ctx)
	}
	if !ok {
		a.close()
		os.Exit(1)
	}
}

func openApp(ctx context.Context) (*app, error) {
	memory.ConfigureFromEnv()

	config, err := startup.ReadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := codec.InitVips(); err != nil {
		logging.Debug("libvips unavailable, using pure Go decoders: %v", err)
	}

	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		codec.ShutdownVips()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := storage.NewFileSystem(storage.Config{Root: config.MediaDir, BaseURL: config.MediaURL})
	if err != nil {
		_ = db.Close()
		codec.ShutdownVips()
		return nil, fmt.Errorf("failed to open media storage: %w", err)
	}

	settings, err := config.FieldSettings()
	if err != nil {
		_ = db.Close()
		codec.ShutdownVips()
		return nil, err
	}
	field, err := imagefield.NewField(pattern.Context{DeclaringType: "Entry", Field: "thumbnail"}, config.PatternDecls(), store, settings)
	if err != nil {
		_ = db.Close()
		codec.ShutdownVips()
		return nil, err
	}

	mem := memory.NewMonitor(memory.DefaultConfig())
	mem.Start()

	return &app{
		config: config,
		db:     db,
		svc:    entries.NewService(db, field, config.UploadTo),
		mem:    mem,
	}, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	a.db = nil
	a.mem.Stop()
	codec.ShutdownVips()
}

// sanitizeCommand returns a safe representation of a command string for display.
// It uses an allowlist approach, replacing any character that is not alphanumeric,
// a hyphen, or an underscore with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("ThumbnailField Maintenance")
	fmt.Println("")
	fmt.Println("Usage: thumbnails <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  regenerate [-workers N]  - Regenerate every thumbnail of every entry")
	fmt.Println("  purge [-y]               - Delete every generated thumbnail")
	fmt.Println("  status                   - Show entry and thumbnail counts")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Println("  CONFIG_FILE       - Optional YAML/JSON/TOML config file")
	fmt.Println("  MEDIA_DIR         - Media storage root")
	fmt.Println("  DATABASE_DIR      - Path to database directory")
	fmt.Printf("  %s - Override the worker count\n", workers.EnvOverride)
}

// collect loads every entry with an image. Records are handed to workers
// one each and never shared.
func (a *app) collect(ctx context.Context) ([]*entries.Record, error) {
	var recs []*entries.Record
	err := a.svc.EachWithImage(ctx, func(rec *entries.Record) error {
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func (a *app) regenerate(ctx context.Context, args []string) bool {
	fs := flag.NewFlagSet("regenerate", flag.ContinueOnError)
	n := fs.Int("workers", workers.ForCPU(defaultMaxWorkers), "number of parallel workers")
	if err := fs.Parse(args); err != nil {
		return false
	}
	if *n < 1 {
		fmt.Fprintln(os.Stderr, "Error: -workers must be at least 1")
		return false
	}

	recs, err := a.collect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list entries: %v\n", err)
		return false
	}

	start := time.Now()
	var done, failed atomic.Int64
	err = workers.ForEach(ctx, *n, recs, func(ctx context.Context, rec *entries.Record) error {
		if err := a.mem.Wait(ctx); err != nil {
			return err
		}
		err := rec.Image.UpdateAll(ctx)
		var batch *imagefield.BatchMaterializationError
		switch {
		case err == nil:
			done.Add(1)
		case errors.As(err, &batch), errors.Is(err, codec.ErrImageTooLarge):
			failed.Add(1)
			logging.Warn("Entry %d (%s): %v", rec.Entry.ID, rec.Image.Key(), err)
		default:
			return fmt.Errorf("entry %d: %w", rec.Entry.ID, err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: regeneration stopped: %v\n", err)
		return false
	}

	if err := a.db.SetLastRegenerateRun(ctx, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record run time: %v\n", err)
	}

	fmt.Printf("Regenerated %d entries (%d failed) with %d workers in %v\n",
		done.Load(), failed.Load(), *n, time.Since(start).Round(time.Millisecond))
	return failed.Load() == 0
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything other than y or yes declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (a *app) purge(ctx context.Context, args []string, stdin *os.File) bool {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return false
	}

	recs, err := a.collect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list entries: %v\n", err)
		return false
	}
	if len(recs) == 0 {
		fmt.Println("No entries with images.")
		return true
	}

	if !*yes {
		if !term.IsTerminal(int(stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: refusing to purge without a terminal; pass -y to confirm")
			return false
		}
		question := fmt.Sprintf("Delete %d thumbnails for each of %d entries?", len(a.svc.Field().Names()), len(recs))
		if !confirm(stdin, os.Stdout, question) {
			fmt.Println("Aborted.")
			return true
		}
	}

	var failed atomic.Int64
	err = workers.ForEach(ctx, workers.ForIO(defaultMaxWorkers*2), recs, func(ctx context.Context, rec *entries.Record) error {
		if err := rec.Image.RemoveAll(ctx, false); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed.Add(1)
			logging.Warn("Entry %d (%s): %v", rec.Entry.ID, rec.Image.Key(), err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: purge stopped: %v\n", err)
		return false
	}

	fmt.Printf("Purged thumbnails for %d entries (%d failed)\n", len(recs)-int(failed.Load()), failed.Load())
	return failed.Load() == 0
}

func (a *app) status(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := a.db.GetStats()
	fmt.Printf("Entries:           %d\n", stats.TotalEntries)
	fmt.Printf("Entries with image: %d\n", stats.EntriesWithImage)

	last, err := a.db.GetLastRegenerateRun(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: failed to read last run: %v\n", err)
		return false
	case last.IsZero():
		fmt.Println("Last regenerate:   never")
	default:
		fmt.Printf("Last regenerate:   %s\n", last.Local().Format(time.RFC1123))
	}

	names := a.svc.Field().Names()
	counts := make(map[string]int, len(names))
	err = a.svc.EachWithImage(ctx, func(rec *entries.Record) error {
		for _, name := range names {
			ok, err := rec.Image.Materialized(ctx, name)
			if err != nil {
				return err
			}
			if ok {
				counts[name]++
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to inspect thumbnails: %v\n", err)
		return false
	}

	fmt.Println("")
	fmt.Println("Thumbnails:")
	for _, name := range names {
		fmt.Printf("  %-16s %d/%d\n", name, counts[name], stats.EntriesWithImage)
	}
	return true
}

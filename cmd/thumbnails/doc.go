// Command thumbnails maintains the generated thumbnails of every entry.
//
// It reads the same configuration as the server (environment variables and
// the optional CONFIG_FILE) and works directly on the database and media
// directory, so it can run while the server is stopped.
//
// Usage:
//
//	thumbnails <command> [flags]
//
// Commands:
//
//	regenerate  Regenerate every declared thumbnail of every entry that has
//	            an image. Entries are processed in parallel; -workers sets
//	            the pool size (default from THUMBNAIL_WORKERS or the CPU
//	            count, at most 8). Entries whose thumbnails fail are logged
//	            and counted, and the command exits non-zero. The run time is
//	            recorded and shown by status.
//
//	purge       Delete every generated thumbnail. Originals are kept and the
//	            thumbnails are recreated on next access. Asks for
//	            confirmation unless -y is given; refuses to run without a
//	            terminal and without -y.
//
//	status      Show entry counts, the last regenerate run and how many
//	            entries have each thumbnail in storage.
//
// Environment:
//
//	CONFIG_FILE        Optional config file
//	MEDIA_DIR          Media storage root
//	DATABASE_DIR       Path to database directory
//	THUMBNAIL_WORKERS  Override the worker count
package main

// Package main provides the entry point for the ThumbnailField server.
//
// The server stores entries with an optional uploaded image and derives
// named thumbnails from it on demand. Thumbnails are declared as patterns in
// the configuration, generated lazily the first time they are requested and
// cached in the media directory next to the original.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads CONFIG_FILE and environment variables,
//     validates thumbnail settings and prepares directories
//  2. libvips: Initialized when available as a decoder fallback
//  3. Metrics: Registers collectors and the storage observer
//  4. Database Initialization: Opens SQLite in WAL mode
//  5. Thumbnail Field: Compiles every declared pattern; a bad declaration
//     stops startup
//  6. HTTP Server Setup: API routes, media files, logging and metrics
//     middleware
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM, stops the metrics collector
//     and drains the HTTP server
//
// # Routes
//
//	GET    /api/entries                             list entries
//	POST   /api/entries                             create (multipart: title, body, image)
//	GET    /api/entries/{id}                        entry with every thumbnail
//	PUT    /api/entries/{id}                        update title and body
//	DELETE /api/entries/{id}                        delete entry, image and thumbnails
//	PUT    /api/entries/{id}/image                  replace image
//	DELETE /api/entries/{id}/image                  remove image
//	POST   /api/entries/{id}/thumbnails             regenerate all thumbnails
//	DELETE /api/entries/{id}/thumbnails             delete all thumbnails
//	GET    /api/entries/{id}/thumbnails/{name}      serve one thumbnail (?force=1)
//	GET    /media/...                               originals and thumbnails
//
// See package startup for the configuration reference and cmd/thumbnails
// for offline maintenance.
package main

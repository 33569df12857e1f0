// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// [LoadConfig] reads environment variables and, when CONFIG_FILE names one,
// a YAML, TOML or JSON file through viper. Environment variables win over
// the file.
//
//   - CONFIG_FILE: Optional configuration file
//   - MEDIA_DIR: Storage root for originals and thumbnails (default: /media)
//   - MEDIA_URL: URL prefix media is served under (default: /media/)
//   - DATABASE_DIR: Path to database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log media requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - UPLOAD_TO: Storage directory for uploaded originals (default: img/thumbnails)
//   - THUMBNAILFIELD_REMOVE_PREVIOUS: Delete replaced originals and their thumbnails (default: true)
//   - THUMBNAILFIELD_DEFAULT_TRANSFORM: Transform for shorthand patterns (default: thumbnail)
//   - THUMBNAILFIELD_DEFAULT_OPTIONS: JSON object of default transform options (default: {"filter":"lanczos"})
//   - THUMBNAILFIELD_FILENAME_TEMPLATE: Thumbnail key template (default: {root}/{filename}.{name}.{ext})
//   - THUMBNAILFIELD_SAVE_OPTIONS: JSON object of encoder options, e.g. {"quality":85}
//   - MAX_IMAGE_PIXELS: Largest original that will be decoded (default: 40000000)
//
// Read directly by other packages:
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//   - THUMBNAIL_WORKERS: regenerate pool size, see package workers
//
// Pattern declarations are read from the file only:
//
//	patterns:
//	  original: [[null, null, sepia], [800, 400, resize]]
//	  thumbnails:
//	    large: [[640, 480, resize]]
//	    small: [320, 240, crop, {left: 0, upper: 0}]
//	    tiny: [160, 120]
//
// viper lowercases keys, so thumbnail names are lowercase.
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogVipsInit]: libvips availability
//   - [LogFieldInit]: Declared thumbnails
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: Graceful shutdown
package startup

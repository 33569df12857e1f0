// Package handlers provides HTTP request handlers for the thumbnail service.
//
// It includes handlers for:
//   - Entry listing, creation, update and deletion
//   - Image upload, replacement and removal
//   - Serving named thumbnails, generated on first request
//   - Regenerating and removing an entry's thumbnails
//   - Health checks, version and metrics
package handlers

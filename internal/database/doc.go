// Package database provides SQLite storage for entries and their image
// fields.
//
// It handles storage and retrieval of:
//   - Entries (title, body, image key and original dimensions)
//   - Key/value metadata such as the last thumbnail regenerate run
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database

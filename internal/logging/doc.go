// Package logging is the leveled printf-style logger used across the
// thumbnail pipeline.
//
// Levels, lowest first: DEBUG, INFO, WARN, ERROR. FATAL always prints and
// exits. The initial level comes from DEBUG or LOG_LEVEL; SetLevel
// overrides it once configuration has been loaded.
package logging

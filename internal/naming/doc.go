// Package naming derives storage keys for derived images and infers image
// formats from file names.
//
// A derived key is a pure function of the original key and the thumbnail
// name, rendered through a Template:
//
//	naming.Derive("/some/where/test.png", "small") // "/some/where/test.small.png"
//
// Any process computing the key for the same inputs gets the same answer,
// so storage existence can serve as the cache of materialized thumbnails.
package naming

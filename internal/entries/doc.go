// Package entries binds database entries to the image field.
//
// A [Record] pairs a row with its [imagefield.File]. The file's owner
// callback writes the image key and the original's dimensions back to the
// row, so uploads, replacements and deletions persist through the same
// path the field uses internally.
package entries

// Package pack edits an unpacked resource pack to add or remove custom
// music discs, and converts between pack directories and zip archives.
//
// All operations are local file I/O over a working directory. The layout of
// the model manifest depends on the pack Schema, chosen by SchemaFor.
package pack

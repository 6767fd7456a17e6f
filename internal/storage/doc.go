// Package storage holds the report archive: blob store backends (memory,
// local filesystem, Google Cloud Storage) and the Archiver that writes each
// finished analysis as a write-once JSON object.
package storage

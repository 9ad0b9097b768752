// Package library keeps the reels directory and the database in
// agreement and picks which downloaded reel gets posted next. Files
// that appear on disk without a record are adopted; records whose files
// have vanished are marked failed so they drop out of rotation.
package library

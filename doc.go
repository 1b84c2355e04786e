// Package dat reads the DAT archives of the classic Fallout games.
//
// Two layouts exist. Format-1 archives carry a big-endian directory table at
// the start and store compressed files with LZSS. Format-2 archives end with
// a little-endian trailer pointing at a flat file table and store compressed
// files as deflate streams. Open detects the layout and builds a
// case-insensitive tree of every entry.
//
// Archive implements fs.FS and related interfaces for stdlib compatibility.
// Entry names are matched without regard to case. Entry, Registry().Get and
// the Copy methods accept either '/' or '\' as separators; the fs methods
// take slash paths only and report names containing '\' as not existing.
package dat

// Package blockstore is a storage node's local block persistence layer:
// blocks are stored by opaque id under a root directory, one file per
// block, written via a temp-file-then-rename so a reader never observes a
// partial write.
//
// Blocks are immutable once written, so the interface is narrower than a
// general key-value store: Put-once, Get, Delete, and List, with no
// update-in-place.
package blockstore

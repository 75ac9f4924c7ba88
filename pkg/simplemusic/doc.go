// Package simplemusic manages the lifecycle of published songs, their audio
// and cover objects, the playlists that reference them and the per-user play
// history.
//
// It exposes a single Service interface over three stores that are kept
// consistent without cross-store transactions: a local staging area for
// inbound bytes, a remote blob store for audio and image objects, and a
// document store (Repository) for Song, Playlist, User and PlayEvent records.
// Implementations of the Repository (memory, Postgres, MongoDB) and of the
// BlobStore (memory, filesystem, S3) live in subpackages.
//
// Consistency Strategy
//
// Remote uploads always happen before the record that references them is
// written, and objects uploaded by a failed operation are deleted again
// (compensation). Deleting a song first strips it from every playlist, then
// deletes its objects, then the record. Reads that follow references
// (playlists, recently played) skip ids whose record is gone. Objects leaked
// by a crash or a failed best-effort delete are collected by the reconcile
// package.
package simplemusic

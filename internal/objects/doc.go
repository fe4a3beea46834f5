// Package objects is pushbridge's view of the host platform's object store.
//
// The host keeps configuration as JSON documents keyed by id. Two documents
// matter here:
//   - "system.config": platform-wide settings; native.secret is the shared key.
//   - "system.adapter.<namespace>": one bridge instance; native holds the
//     Pushover user, the credential and the message defaults.
//
// Backends:
//   - "file": one JSON file per object in a directory
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "mongo": MongoDB collection
//   - "memory": process-local map (tests, dry runs)
package objects

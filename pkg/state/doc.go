// Package state persists named snapshots, such as saved searches, behind a
// small Store contract.
//
// A Store only loads and saves one snapshot for one Ref. Presets layers the
// read-modify-write cycle on top: it loads the current snapshot, applies a
// mutator, validates the result and saves it with fresh metadata. Writers
// that pass the ETag they last observed get ErrETagMismatch when someone else
// saved in between.
//
// Refs are normalised before use: an empty owner becomes DefaultOwner and
// both parts must start with a letter or digit. Ref.Identifier() yields
// "<owner>/<name>"; FileStore maps it to <dir>/<owner>/<name>.yaml while
// MemoryStore keeps one map per owner.
package state

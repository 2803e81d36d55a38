// Package types defines the backing store contract used by reconciliation:
// the Store, Relation and Record interfaces, table definitions, the store
// Config and the standard errors shared by every backend.
package types

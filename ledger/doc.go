// Package ledger implements the knowledge-market bookkeeping: pooled stakes,
// the question/answer store, settlement of the four mutating operations and a
// read-only query surface.
//
// Every operation works on an explicit core.State and returns its transfers
// as effects instead of moving value itself. The caller runs each operation
// inside a state snapshot and reverts on error, so a failed operation never
// leaves partial writes behind.
package ledger

// Package core holds the RowStore domain: datasets, their ingestion, aliases
// and queries. It has no knowledge of HTTP; the web package drives it through
// [Service].
//
// # Ingestion
//
// An upload is read synchronously, bounded by the configured file size, and
// handed to the [Scheduler] which returns immediately. In the background the
// job runs
//
//  1. [Detect]: strip the BOM, decode the declared charset, UTF-8 or
//     Windows-1252, and pick the comma or semicolon delimiter
//  2. [ParseCSV]: read the header and rows, enforcing one field count
//  3. a snapshot swap in the [Store]: create, replace or append
//
// Jobs for one dataset run strictly in submission order. Jobs for different
// datasets run in parallel, bounded by the [EtlLimiter].
//
// # Snapshots
//
// A [Dataset] is never modified after it is published. Readers hold a
// pointer to a complete snapshot while jobs build and swap in the next one,
// so a query sees either the old or the new table.
//
// # Error Handling
//
// Ingestion errors are recorded on the dataset and observed by polling its
// status. Query and alias errors are returned to the caller as the typed
// errors in errors.go. [MapError] turns any of them into a user message with
// a support code.
package core

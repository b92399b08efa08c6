// Package importjob implements import job lifecycle management.
//
// The service layer owns the import state machine (pending → processing →
// completed/failed), coordinates the record store, event store, and file
// store for create/complete/fail/delete operations, and enforces ownership
// and active-job protection. It depends on the interfaces defined in this
// package and should never import from api/.
//
// Store implementations live in repository/postgres/, eventstore/, and
// storage/.
package importjob

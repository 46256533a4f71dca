// Package database provides the PostgreSQL connection pool used by the
// peer audit trail.
package database

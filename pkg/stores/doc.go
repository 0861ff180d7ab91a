// Package stores persists deployment run history in a local SQLite database.
// The schema is managed by embedded migrations applied at startup.
package stores

// Package mysql provides the shared MySQL connection pool and the embedded
// schema migration runner. The settlement, execution and fill job stores all
// borrow the same *sql.DB opened here.
package mysql

// Package postgres implements the analytics event source and run store
// against PostgreSQL. Schema lives in migrations/.
package postgres

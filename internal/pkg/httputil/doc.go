// Package httputil provides the JSON response helpers and error envelope
// shared by the analytics HTTP handlers.
package httputil

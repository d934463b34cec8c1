// Package source lists saved articles and fetches their content from a
// Readwise-Reader-compatible API.
package source

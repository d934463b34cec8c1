// Package publish uploads audio artifacts to an S3-compatible bucket and
// renders the podcast RSS feed that points at them.
package publish

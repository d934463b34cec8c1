// Package main hosts the readcast CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the cron-facing run command, record
// inspection and operator retries, feed rendering, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands stay declarative while the heavy lifting lives in the internal
// pipeline packages.
package main

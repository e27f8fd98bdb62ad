// Command inkwell is the CLI for the document ingestion service. It talks
// to the running daemon over its HTTP API.
package main

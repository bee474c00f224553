/*
Package wire implements the Operation Log's length-prefixed binary frame
format (spec.md §6), used both for inter-node fan-out and for the
bootstrap snapshot exchange. It has no knowledge of sockets, retries, or
storage — Encode and Decode operate on any io.Writer/io.Reader, so
pkg/oplog's transport and segment-file code can each use the same codec.
*/
package wire

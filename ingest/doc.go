// Package ingest accepts JT/T 1078 streams over TCP and turns them into
// complete media frames.
//
// Each connection is read through jt1078.NewScanner, every record is parsed
// with jt1078.Parse, and fragmented frames are rebuilt by one jt1078.Assembler
// per (SIM, channel) stream. Complete frames are handed to the FrameHandler
// together with their StreamKey. Records that cannot be classified and
// partial frames broken by a sequence gap are counted and skipped; they never
// close the connection.
package ingest

// Package srt implements SRT (Secure Reliable Transport) ingest: a
// listener-mode Server accepting publish connections, a caller-mode Caller
// pulling streams from remote SRT listeners into the ingest registry, and
// an ingest.Opener for playing srt:// URLs directly.
package srt

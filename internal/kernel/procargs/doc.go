// Package procargs encodes the startup message a process reads from the
// channel it was started with.
//
// The message is little-endian: a fixed header (protocol, version, then
// offsets and counts for handle tags, args and environment), one uint32
// tag per handle carried by the channel message, and NUL-terminated
// strings. Tags name what each handle is for, such as the process itself
// or the job it may create children in.
package procargs

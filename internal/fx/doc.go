// Package fx holds the kernel's ABI vocabulary: status codes, rights,
// signals, object types, policies and the records exchanged with callers
// (port packets, handle dispositions, info topics).
//
// Every numeric value here is part of the syscall contract with the
// userspace runtime and is kept bit-exact.
package fx

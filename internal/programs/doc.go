// Package programs holds the built-in programs processes can be started
// with.
//
// Each program reads a startup message from the channel it was started
// with. echo then writes every further message back; ping creates an echo
// process in its own job and makes channel calls to it.
package programs

/*
Package userboot starts the first process and, through it, everything a
boot manifest names.

# Boot

Boot creates the userboot process in the root job and a bootstrap channel.
The kernel end stays with Boot; the other end is the argument userboot is
started with. Before the process runs, Boot writes a startup message on the
channel carrying two tagged handles: the process itself and the root job.

Userboot then works only through syscalls. For every job in the manifest it
creates a child job, names it and applies its policy relative to the
parent's. For every process it creates the process, gives it a fresh
channel holding a startup message (args, env and a handle to its job) and
starts it with the registered program. It finally writes a JSON report on
the bootstrap channel; Boot returns once that report arrives.

# Manifest

	wait: true
	processes:
	  - name: echo
	    program: echo
	jobs:
	  - name: clients
	    policy:
	      - condition: new_vmo
	        action: deny
	    processes:
	      - name: ping
	        program: ping
	        args: ["3"]

The same structure may be written in TOML. With wait set, userboot stays
alive until every process it started has terminated.
*/
package userboot

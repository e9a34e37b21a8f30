// Package kernel is the syscall surface of the fiber kernel.
//
// A Kernel owns the handle arena and the job tree. Each process reaches the
// kernel through a System bound to it: handle values are resolved in that
// process's handle table and object creation is checked against the policy
// of its job.
//
// Syscalls by category:
//   - Handles: close, close_many, duplicate, replace
//   - Objects: wait_one, wait_async, signal, signal_peer, get_info,
//     get_property, set_property
//   - Channels: create, read, read_etc, write, write_etc, call_etc
//   - Tasks: job_create, job_set_policy, process_create, process_start,
//     process_exit, task_kill
//   - Ports, events, vmos and the monotonic clock
//
// Every syscall returns an fx.Status and is recorded in the kernel's
// metrics, and as a span when a tracer is configured.
//
// Processes run Programs looked up by name in the kernel's Registry.
//
// Example Usage:
//
//	k := kernel.New(kernel.Options{Config: cfg.Kernel, Logger: logger})
//	k.Programs().Register(echoProgram)
//	p, _ := k.NewProcess(k.RootJob(), "echo")
//	k.StartProcess(p, echoProgram, nil)
package kernel

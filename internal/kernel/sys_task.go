package kernel

import (
	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// JobCreate creates a child of the job behind parent
func (s *System) JobCreate(parent fx.Handle, options uint32) (out fx.Handle, status fx.Status) {
	defer s.track("job_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.ErrInvalidArgs
	}
	job, status := lookup[*object.JobDispatcher](s, parent, fx.RightManageJob)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	child, status := object.NewJob(job)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	return s.publish(child, fx.DefaultJobRights)
}

// JobSetPolicy merges basic policy entries into the job behind h. options
// is JobPolicyRelative or JobPolicyAbsolute.
func (s *System) JobSetPolicy(h fx.Handle, options, topic uint32, entries []fx.PolicyBasic) (status fx.Status) {
	defer s.track("job_set_policy")(&status)

	job, status := lookup[*object.JobDispatcher](s, h, fx.RightSetPolicy)
	if status != fx.OK {
		return status
	}
	switch topic {
	case fx.JobPolicyBasic:
		return job.SetBasicPolicy(options, entries)
	case fx.JobPolicyTimerSlack:
		return fx.ErrNotSupported
	default:
		return fx.ErrInvalidArgs
	}
}

// ProcessCreate creates a process in the job behind job. Names longer than
// MaxNameLen are truncated.
func (s *System) ProcessCreate(job fx.Handle, name string, options uint32) (out fx.Handle, status fx.Status) {
	defer s.track("process_create")(&status)

	if options != 0 {
		return fx.HandleInvalid, fx.ErrInvalidArgs
	}
	j, status := lookup[*object.JobDispatcher](s, job, fx.RightManageProcess)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	if status := s.enforce(fx.PolicyNewProcess); status != fx.OK {
		return fx.HandleInvalid, status
	}

	p, status := s.k.NewProcess(j, name)
	if status != fx.OK {
		return fx.HandleInvalid, status
	}
	out, status = s.publish(p, fx.DefaultProcessRights)
	if status == fx.OK {
		s.logger.Debug("process created",
			zap.String("name", p.Name()),
			logging.Koid("koid", p.Koid()),
		)
	}
	return out, status
}

// ProcessStart runs the named program in the process behind h. arg is moved
// into the new process and passed to the program; it is consumed even when
// the call fails.
func (s *System) ProcessStart(h fx.Handle, program string, arg fx.Handle) (status fx.Status) {
	defer s.track("process_start")(&status)

	var argHandle *object.Handle
	if arg != fx.HandleInvalid {
		argHandle, status = s.table.RemoveHandle(arg)
		if status != fx.OK {
			return status
		}
		if !argHandle.HasRights(fx.RightTransfer) {
			argHandle.Delete()
			return fx.ErrAccessDenied
		}
	}
	fail := func(status fx.Status) fx.Status {
		if argHandle != nil {
			argHandle.Delete()
		}
		return status
	}

	p, status := lookup[*object.ProcessDispatcher](s, h, fx.RightWrite)
	if status != fx.OK {
		return fail(status)
	}
	prog, ok := s.k.programs.Get(program)
	if !ok {
		return fail(fx.ErrNotFound)
	}
	return s.k.StartProcess(p, prog, argHandle)
}

// ProcessExit terminates the calling process. The program should return
// right after; its own return value is ignored.
func (s *System) ProcessExit(retcode int64) {
	status := fx.OK
	defer s.track("process_exit")(&status)
	s.proc.Exit(retcode)
}

// TaskKill kills the process or job behind h
func (s *System) TaskKill(h fx.Handle) (status fx.Status) {
	defer s.track("task_kill")(&status)

	d, status := lookup[object.Dispatcher](s, h, fx.RightDestroy)
	if status != fx.OK {
		return status
	}
	switch task := d.(type) {
	case *object.ProcessDispatcher:
		task.Kill(fx.TaskRetcodeSyscallKill)
	case *object.JobDispatcher:
		task.Kill(fx.TaskRetcodeSyscallKill)
	default:
		return fx.ErrWrongType
	}
	return fx.OK
}

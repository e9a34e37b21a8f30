package object

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// ProcessState is the lifecycle of a process
type ProcessState int

const (
	ProcessInitial ProcessState = iota
	ProcessRunning
	ProcessDying
	ProcessDead
)

func (s ProcessState) String() string {
	switch s {
	case ProcessInitial:
		return "initial"
	case ProcessRunning:
		return "running"
	case ProcessDying:
		return "dying"
	case ProcessDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Entry is the body of a process. It runs on its own goroutine and its
// return value becomes the process's exit code. ctx is canceled when the
// process is killed. arg is the value of the startup handle, or
// HandleInvalid.
type Entry func(ctx context.Context, arg fx.Handle) int64

// ProcessDispatcher is a process: a handle table, a policy inherited from
// its job and a goroutine running its entry.
type ProcessDispatcher struct {
	BaseDispatcher

	job     *JobDispatcher
	handles *HandleTable
	policy  JobPolicy

	state   ProcessState
	retcode int64

	ctx    context.Context
	cancel context.CancelFunc

	exceptions atomic.Uint64

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// ProcessOptions carry the kernel services a process needs
type ProcessOptions struct {
	Arena   *Arena
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// NewProcess creates a process in job. It fails with BAD_STATE if the job is
// being killed.
func NewProcess(job *JobDispatcher, name string, opts ProcessOptions) (*ProcessDispatcher, fx.Status) {
	p := &ProcessDispatcher{
		job:     job,
		metrics: opts.Metrics,
	}
	p.init(fx.SignalNone, nil)
	p.SetName(name)
	p.handles = NewHandleTable(opts.Arena, p.Koid(), p)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.logger = logging.OrNop(opts.Logger).With(
		logging.Koid("pid", p.Koid()),
		zap.String("name", p.Name()),
	)

	policy, status := job.addChildProcess(p)
	if status != fx.OK {
		p.cancel()
		return nil, status
	}
	p.policy = policy
	opts.Metrics.RecordDispatcherCreated(fx.ObjTypeProcess.String())
	return p, fx.OK
}

func (p *ProcessDispatcher) Type() fx.ObjType          { return fx.ObjTypeProcess }
func (p *ProcessDispatcher) DefaultRights() fx.Rights  { return fx.DefaultProcessRights }
func (p *ProcessDispatcher) RelatedKoid() fx.Koid      { return p.job.Koid() }
func (p *ProcessDispatcher) Job() *JobDispatcher       { return p.job }
func (p *ProcessDispatcher) HandleTable() *HandleTable { return p.handles }

// Context is canceled once the process starts dying
func (p *ProcessDispatcher) Context() context.Context {
	return p.ctx
}

func (p *ProcessDispatcher) State() ProcessState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

// Retcode is valid once the process is dead
func (p *ProcessDispatcher) Retcode() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.retcode
}

// PolicyExceptions counts policy conditions that raised an exception
func (p *ProcessDispatcher) PolicyExceptions() uint64 {
	return p.exceptions.Load()
}

// Start moves the process to running and runs entry on a new goroutine.
// When entry returns the process exits with its result. arg, if not nil, is
// installed in the process's table after the state change, so a concurrent
// kill either sees an initial process and Start fails, or cleans a table
// that refuses arg. arg is consumed in every case.
func (p *ProcessDispatcher) Start(arg *Handle, entry Entry) fx.Status {
	p.lock.Lock()
	if p.state != ProcessInitial {
		p.lock.Unlock()
		if arg != nil {
			arg.Delete()
		}
		return fx.ErrBadState
	}
	p.state = ProcessRunning
	p.lock.Unlock()

	argValue := fx.HandleInvalid
	if arg != nil {
		var status fx.Status
		if argValue, status = p.handles.AddHandle(arg); status != fx.OK {
			p.Kill(fx.TaskRetcodeSyscallKill)
			return status
		}
	}

	p.logger.Debug("process started")
	go func() {
		p.Exit(entry(p.ctx, argValue))
	}()
	return fx.OK
}

// Exit terminates the process with retcode
func (p *ProcessDispatcher) Exit(retcode int64) {
	p.terminate(retcode)
}

// Kill terminates the process with retcode. Killing a dead process is a
// no-op.
func (p *ProcessDispatcher) Kill(retcode int64) {
	p.terminate(retcode)
}

// terminate closes every handle, asserts TASK_TERMINATED and detaches from
// the job. Only the first caller does the work.
func (p *ProcessDispatcher) terminate(retcode int64) {
	p.lock.Lock()
	if p.state == ProcessDying || p.state == ProcessDead {
		p.lock.Unlock()
		return
	}
	p.state = ProcessDying
	p.retcode = retcode
	p.lock.Unlock()

	p.cancel()
	p.handles.Clean()

	p.lock.Lock()
	p.state = ProcessDead
	p.UpdateStateLocked(0, fx.TaskTerminated)
	p.lock.Unlock()

	p.logger.Debug("process terminated", zap.Int64("retcode", retcode))
	p.metrics.RecordDispatcherDestroyed(fx.ObjTypeProcess.String())
	p.job.removeChildProcess(p)
}

// OnZeroHandles kills a process that was never started. A running process
// lives on without handles.
func (p *ProcessDispatcher) OnZeroHandles() {
	if p.State() == ProcessInitial {
		p.Kill(fx.TaskRetcodeSyscallKill)
	}
}

// EnforceBasicPolicy applies the job policy for condition. It returns OK if
// the operation may proceed and ACCESS_DENIED otherwise. A kill action
// terminates the process before returning.
func (p *ProcessDispatcher) EnforceBasicPolicy(condition fx.PolicyCondition) fx.Status {
	action := p.policy.Action(condition)
	if action == fx.PolicyActionAllow {
		return fx.OK
	}

	p.metrics.RecordPolicyViolation(condition.String(), action.String())
	p.logger.Warn("job policy triggered",
		zap.Stringer("condition", condition),
		zap.Stringer("action", action),
	)

	switch action {
	case fx.PolicyActionDeny:
		return fx.ErrAccessDenied
	case fx.PolicyActionAllowException:
		p.exceptions.Add(1)
		return fx.OK
	case fx.PolicyActionDenyException:
		p.exceptions.Add(1)
		return fx.ErrAccessDenied
	case fx.PolicyActionKill:
		p.Kill(fx.TaskRetcodePolicyKill)
		return fx.ErrAccessDenied
	default:
		return fx.ErrAccessDenied
	}
}

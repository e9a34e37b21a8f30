package userboot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/object"
	"github.com/meshx-org/fiber/internal/kernel/procargs"
)

// ProgramName is the name of the first process
const ProgramName = "userboot"

// Started is one process userboot started
type Started struct {
	Name    string  `json:"name"`
	Program string  `json:"program"`
	Job     string  `json:"job"`
	Koid    fx.Koid `json:"koid"`
}

// Report is what userboot sends back on the bootstrap channel once the
// manifest is applied. Error is set if applying stopped early.
type Report struct {
	Processes []Started `json:"processes"`
	Error     string    `json:"error,omitempty"`
}

// Result is the outcome of Boot
type Result struct {
	Process *object.ProcessDispatcher
	Report  Report
}

// Wait blocks until the userboot process terminates and returns its exit
// code. With a manifest that sets wait, that is after every process it
// started has terminated.
func (r *Result) Wait(ctx context.Context) (int64, error) {
	w := object.NewWaiter()
	r.Process.AddObserver(w, nil, fx.TaskTerminated, false)
	select {
	case <-w.Done():
		return r.Process.Retcode(), nil
	case <-ctx.Done():
		r.Process.RemoveObserver(w)
		return 0, ctx.Err()
	}
}

// Boot creates the userboot process in the root job and starts it with the
// kernel end of a bootstrap channel holding a startup message. The message
// carries a handle to the process itself and one to the root job. Boot
// returns once userboot reports back, or fails if userboot exits first.
func Boot(ctx context.Context, k *kernel.Kernel, m *Manifest) (*Result, error) {
	logger := k.Logger().Named("userboot")
	if err := m.Validate(k.Programs()); err != nil {
		return nil, err
	}

	p, status := k.NewProcess(k.RootJob(), ProgramName)
	if status != fx.OK {
		return nil, fmt.Errorf("create userboot process: %w", status)
	}

	kernelEnd, userEnd := object.NewChannelPair(object.ChannelOptions{
		MaxMessages: int(k.Config().MaxChannelMessages),
		Metrics:     k.Metrics(),
	})
	bootstrap := object.NewKernelHandle(kernelEnd)
	defer bootstrap.Close()

	user := object.NewKernelHandle(userEnd)
	if err := sendBootstrap(k, p, kernelEnd); err != nil {
		user.Close()
		p.Kill(fx.TaskRetcodeSyscallKill)
		return nil, err
	}
	arg, status := k.Arena().Make(user, fx.DefaultChannelRights)
	if status != fx.OK {
		user.Close()
		p.Kill(fx.TaskRetcodeSyscallKill)
		return nil, fmt.Errorf("publish bootstrap channel: %w", status)
	}
	if status := k.StartProcess(p, &bootProgram{manifest: m}, arg); status != fx.OK {
		p.Kill(fx.TaskRetcodeSyscallKill)
		return nil, fmt.Errorf("start userboot: %w", status)
	}
	logger.Info("userboot started", logging.Koid("pid", p.Koid()))

	report, err := awaitReport(ctx, kernelEnd)
	result := &Result{Process: p, Report: report}
	if err != nil {
		logger.Error("boot failed", zap.Error(err))
		return result, err
	}
	logger.Info("boot complete", zap.Int("processes", len(report.Processes)))
	return result, nil
}

func sendBootstrap(k *kernel.Kernel, p *object.ProcessDispatcher, to *object.ChannelDispatcher) error {
	self, status := k.Arena().Make(object.NewKernelHandle(p), fx.DefaultProcessRights)
	if status != fx.OK {
		return fmt.Errorf("publish process handle: %w", status)
	}
	job, status := k.Arena().Make(object.NewKernelHandle(k.RootJob()), fx.DefaultJobRights)
	if status != fx.OK {
		self.Delete()
		return fmt.Errorf("publish root job handle: %w", status)
	}

	msg := procargs.Message{Handles: []procargs.HandleInfo{
		procargs.NewHandleInfo(procargs.HandleProcSelf, 0),
		procargs.NewHandleInfo(procargs.HandleJobDefault, 0),
	}}
	packet, status := object.NewMessagePacket(msg.Marshal(), []*object.Handle{self, job})
	if status != fx.OK {
		self.Delete()
		job.Delete()
		return fmt.Errorf("bootstrap message: %w", status)
	}
	if status := to.Write(fx.KoidInvalid, packet); status != fx.OK {
		packet.Destroy()
		return fmt.Errorf("write bootstrap message: %w", status)
	}
	return nil
}

func awaitReport(ctx context.Context, ch *object.ChannelDispatcher) (Report, error) {
	w := object.NewWaiter()
	ch.AddObserver(w, nil, fx.ChannelReadable|fx.ChannelPeerClosed, false)
	select {
	case <-w.Done():
	case <-ctx.Done():
		ch.RemoveObserver(w)
		return Report{}, fmt.Errorf("waiting for userboot: %w", ctx.Err())
	}

	res, status := ch.Read(fx.KoidInvalid, fx.ChannelMaxMsgBytes, fx.ChannelMaxMsgHandles, true)
	if status == fx.ErrPeerClosed {
		return Report{}, fmt.Errorf("userboot exited without a report: %w", status)
	}
	if status != fx.OK {
		return Report{}, fmt.Errorf("read userboot report: %w", status)
	}
	res.Message.Destroy()

	var report Report
	if err := sonic.Unmarshal(res.Message.Data(), &report); err != nil {
		return Report{}, fmt.Errorf("decode userboot report: %w", err)
	}
	if report.Error != "" {
		return report, fmt.Errorf("userboot: %s", report.Error)
	}
	return report, nil
}

// bootProgram is the program the userboot process runs
type bootProgram struct {
	manifest *Manifest
}

func (b *bootProgram) Definition() kernel.ProgramInfo {
	return kernel.ProgramInfo{
		Name:        ProgramName,
		Description: "creates the jobs and processes named by the boot manifest",
	}
}

func (b *bootProgram) Run(ctx context.Context, sys *kernel.System, bootstrap fx.Handle) int64 {
	logger := sys.Logger().Named("userboot")
	defer sys.HandleClose(bootstrap)

	st, err := procargs.Read(ctx, sys, bootstrap)
	if err != nil {
		logger.Error("bootstrap message", zap.Error(err))
		return exitCode(err)
	}
	defer st.Close(sys)

	if self := st.Take(procargs.HandleProcSelf, 0); self != fx.HandleInvalid {
		if info, status := sys.ObjectGetInfo(self, fx.TopicHandleBasic); status == fx.OK {
			logger.Debug("bootstrap received", logging.Koid("job", info.RelatedKoid))
		}
		sys.HandleClose(self)
	}
	root := st.Take(procargs.HandleJobDefault, 0)
	if root == fx.HandleInvalid {
		logger.Error("bootstrap message carries no job")
		return int64(fx.ErrBadHandle)
	}
	defer sys.HandleClose(root)

	l := &launcher{sys: sys, logger: logger}
	defer l.closeAll()

	err = l.apply(root, "root", b.manifest.Jobs, b.manifest.Processes)
	report := Report{Processes: l.started}
	if err != nil {
		report.Error = err.Error()
	}
	if werr := l.report(bootstrap, report); werr != nil {
		logger.Error("report", zap.Error(werr))
		if err == nil {
			err = werr
		}
	}
	if err != nil {
		return exitCode(err)
	}

	if b.manifest.Wait {
		return l.waitAll(ctx)
	}
	return 0
}

func exitCode(err error) int64 {
	var status fx.Status
	if errors.As(err, &status) {
		return int64(status)
	}
	return int64(fx.ErrInternal)
}

// launcher applies a manifest through the syscalls of the userboot process
type launcher struct {
	sys     *kernel.System
	logger  *zap.Logger
	started []Started
	procs   []fx.Handle
}

func (l *launcher) apply(job fx.Handle, path string, jobs []JobSpec, procs []ProcessSpec) error {
	for _, spec := range procs {
		if err := l.launch(job, path, spec); err != nil {
			return err
		}
	}
	for _, spec := range jobs {
		if err := l.applyJob(job, path, spec); err != nil {
			return err
		}
	}
	return nil
}

func (l *launcher) applyJob(parent fx.Handle, parentPath string, spec JobSpec) error {
	path := parentPath + "/" + spec.Name
	job, status := l.sys.JobCreate(parent, 0)
	if status != fx.OK {
		return fmt.Errorf("create job %s: %w", path, status)
	}
	// the job outlives this handle while it has children
	defer l.sys.HandleClose(job)

	if status := l.sys.ObjectSetProperty(job, fx.PropName, []byte(spec.Name)); status != fx.OK {
		return fmt.Errorf("name job %s: %w", path, status)
	}
	policy, err := spec.basicPolicy()
	if err != nil {
		return err
	}
	if len(policy) > 0 {
		if status := l.sys.JobSetPolicy(job, fx.JobPolicyRelative, fx.JobPolicyBasic, policy); status != fx.OK {
			return fmt.Errorf("set policy on job %s: %w", path, status)
		}
	}
	l.logger.Info("job created", zap.String("job", path), zap.Int("policies", len(policy)))

	return l.apply(job, path, spec.Jobs, spec.Processes)
}

// launch creates a process in job and starts it with a fresh channel whose
// startup message carries the manifest args and env, and a duplicate of the
// job handle.
func (l *launcher) launch(job fx.Handle, path string, spec ProcessSpec) error {
	name := path + "/" + spec.Name
	proc, status := l.sys.ProcessCreate(job, spec.Name, 0)
	if status != fx.OK {
		return fmt.Errorf("create process %s: %w", name, status)
	}
	local, remote, status := l.sys.ChannelCreate(0)
	if status != fx.OK {
		l.sys.HandleClose(proc)
		return fmt.Errorf("bootstrap channel for %s: %w", name, status)
	}
	defer l.sys.HandleClose(local)

	jobDup, status := l.sys.HandleDuplicate(job, fx.RightSameRights)
	if status != fx.OK {
		l.sys.HandleCloseMany([]fx.Handle{proc, remote})
		return fmt.Errorf("duplicate job for %s: %w", name, status)
	}
	msg := &procargs.Message{
		Handles: []procargs.HandleInfo{procargs.NewHandleInfo(procargs.HandleJobDefault, 0)},
		Args:    spec.Args,
		Environ: spec.Env,
	}
	if err := procargs.Send(l.sys, local, msg, []fx.Handle{jobDup}); err != nil {
		l.sys.HandleCloseMany([]fx.Handle{proc, remote})
		return fmt.Errorf("process %s: %w", name, err)
	}
	if status := l.sys.ProcessStart(proc, spec.Program, remote); status != fx.OK {
		l.sys.HandleClose(proc)
		return fmt.Errorf("start process %s: %w", name, status)
	}

	info, status := l.sys.ObjectGetInfo(proc, fx.TopicHandleBasic)
	if status != fx.OK {
		l.sys.HandleClose(proc)
		return fmt.Errorf("inspect process %s: %w", name, status)
	}
	l.started = append(l.started, Started{Name: spec.Name, Program: spec.Program, Job: path, Koid: info.Koid})
	l.procs = append(l.procs, proc)
	l.logger.Info("process started",
		zap.String("process", name),
		zap.String("program", spec.Program),
		logging.Koid("koid", info.Koid),
	)
	return nil
}

func (l *launcher) report(bootstrap fx.Handle, report Report) error {
	data, err := sonic.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if status := l.sys.ChannelWrite(bootstrap, 0, data, nil); status != fx.OK {
		return fmt.Errorf("write report: %w", status)
	}
	return nil
}

// waitAll waits for every started process to terminate
func (l *launcher) waitAll(ctx context.Context) int64 {
	for i, proc := range l.procs {
		if _, status := l.sys.ObjectWaitOne(ctx, proc, fx.TaskTerminated, fx.TimeInfinite); status != fx.OK {
			l.logger.Warn("wait for process", zap.String("process", l.started[i].Name), logging.Status(status))
			return int64(status)
		}
		l.logger.Info("process terminated", zap.String("process", l.started[i].Name))
	}
	return 0
}

func (l *launcher) closeAll() {
	l.sys.HandleCloseMany(l.procs)
	l.procs = nil
}

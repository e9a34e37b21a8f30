package object

import (
	"slices"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
)

// JobState is the lifecycle of a job
type JobState int

const (
	JobReady JobState = iota
	JobKilling
	JobDead
)

func (s JobState) String() string {
	switch s {
	case JobReady:
		return "ready"
	case JobKilling:
		return "killing"
	case JobDead:
		return "dead"
	default:
		return "unknown"
	}
}

// JobDispatcher is a node in the job tree. It groups processes and child
// jobs, bounds the tree's depth and carries the policy its processes
// inherit. State and children are guarded by the base lock.
type JobDispatcher struct {
	BaseDispatcher

	parent    *JobDispatcher
	maxHeight uint32

	state       JobState
	jobs        []*JobDispatcher
	procs       []*ProcessDispatcher
	policy      JobPolicy
	retcode     int64
	zeroHandles bool

	metrics *monitoring.Metrics
}

// NewRootJob creates the job at the top of the tree
func NewRootJob(maxHeight uint32, metrics *monitoring.Metrics) *JobDispatcher {
	j := &JobDispatcher{maxHeight: maxHeight, metrics: metrics}
	j.init(fx.JobNoJobs|fx.JobNoProcesses, nil)
	metrics.RecordDispatcherCreated(fx.ObjTypeJob.String())
	return j
}

// NewJob creates a child of parent. The child inherits parent's policy and
// is one level shorter.
func NewJob(parent *JobDispatcher) (*JobDispatcher, fx.Status) {
	if parent.maxHeight == 0 {
		return nil, fx.ErrOutOfRange
	}
	j := &JobDispatcher{
		parent:    parent,
		maxHeight: parent.maxHeight - 1,
		metrics:   parent.metrics,
	}
	j.init(fx.JobNoJobs|fx.JobNoProcesses, nil)

	if status := parent.addChildJob(j); status != fx.OK {
		return nil, status
	}
	parent.metrics.RecordDispatcherCreated(fx.ObjTypeJob.String())
	return j, fx.OK
}

func (j *JobDispatcher) Type() fx.ObjType         { return fx.ObjTypeJob }
func (j *JobDispatcher) DefaultRights() fx.Rights { return fx.DefaultJobRights }
func (j *JobDispatcher) Parent() *JobDispatcher   { return j.parent }
func (j *JobDispatcher) MaxHeight() uint32        { return j.maxHeight }

func (j *JobDispatcher) RelatedKoid() fx.Koid {
	if j.parent == nil {
		return fx.KoidInvalid
	}
	return j.parent.Koid()
}

func (j *JobDispatcher) State() JobState {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.state
}

// Policy returns a copy of the job's policy
func (j *JobDispatcher) Policy() JobPolicy {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.policy
}

// ChildJobs returns a snapshot of the child jobs
func (j *JobDispatcher) ChildJobs() []*JobDispatcher {
	j.lock.Lock()
	defer j.lock.Unlock()
	return slices.Clone(j.jobs)
}

// Processes returns a snapshot of the child processes
func (j *JobDispatcher) Processes() []*ProcessDispatcher {
	j.lock.Lock()
	defer j.lock.Unlock()
	return slices.Clone(j.procs)
}

// SetBasicPolicy merges entries into the job's policy. Policy can only
// change while the job is empty.
func (j *JobDispatcher) SetBasicPolicy(mode uint32, entries []fx.PolicyBasic) fx.Status {
	j.lock.Lock()
	defer j.lock.Unlock()

	if len(j.jobs) > 0 || len(j.procs) > 0 {
		return fx.ErrBadState
	}
	next, status := j.policy.AddBasicPolicy(mode, entries)
	if status != fx.OK {
		return status
	}
	j.policy = next
	return fx.OK
}

func (j *JobDispatcher) addChildJob(child *JobDispatcher) fx.Status {
	j.lock.Lock()
	defer j.lock.Unlock()

	if j.state != JobReady {
		return fx.ErrBadState
	}
	child.policy = j.policy
	j.jobs = append(j.jobs, child)
	if len(j.jobs) == 1 {
		j.UpdateStateLocked(fx.JobNoJobs, 0)
	}
	return fx.OK
}

func (j *JobDispatcher) addChildProcess(p *ProcessDispatcher) (JobPolicy, fx.Status) {
	j.lock.Lock()
	defer j.lock.Unlock()

	if j.state != JobReady {
		return JobPolicy{}, fx.ErrBadState
	}
	j.procs = append(j.procs, p)
	if len(j.procs) == 1 {
		j.UpdateStateLocked(fx.JobNoProcesses, 0)
	}
	return j.policy, fx.OK
}

func (j *JobDispatcher) removeChildJob(child *JobDispatcher) {
	j.lock.Lock()
	i := slices.Index(j.jobs, child)
	if i < 0 {
		j.lock.Unlock()
		return
	}
	j.jobs = slices.Delete(j.jobs, i, i+1)
	if len(j.jobs) == 0 {
		j.UpdateStateLocked(0, fx.JobNoJobs)
	}
	dead := j.maybeDieLocked()
	j.lock.Unlock()

	if dead {
		j.finishDead()
	}
}

func (j *JobDispatcher) removeChildProcess(p *ProcessDispatcher) {
	j.lock.Lock()
	i := slices.Index(j.procs, p)
	if i < 0 {
		j.lock.Unlock()
		return
	}
	j.procs = slices.Delete(j.procs, i, i+1)
	if len(j.procs) == 0 {
		j.UpdateStateLocked(0, fx.JobNoProcesses)
	}
	dead := j.maybeDieLocked()
	j.lock.Unlock()

	if dead {
		j.finishDead()
	}
}

// maybeDieLocked moves an empty job to DEAD when it is being killed or has
// lost its last handle. The root job never dies on its own.
func (j *JobDispatcher) maybeDieLocked() bool {
	if j.state == JobDead || len(j.jobs) > 0 || len(j.procs) > 0 {
		return false
	}
	if j.state != JobKilling && !(j.zeroHandles && j.parent != nil) {
		return false
	}
	j.state = JobDead
	j.UpdateStateLocked(0, fx.JobTerminated)
	return true
}

func (j *JobDispatcher) finishDead() {
	j.metrics.RecordDispatcherDestroyed(fx.ObjTypeJob.String())
	if j.parent != nil {
		j.parent.removeChildJob(j)
	}
}

// Kill terminates every process and job below j, then j itself. It reports
// false if the job was already dying.
func (j *JobDispatcher) Kill(retcode int64) bool {
	j.lock.Lock()
	if j.state != JobReady {
		j.lock.Unlock()
		return false
	}
	j.state = JobKilling
	j.retcode = retcode
	jobs := slices.Clone(j.jobs)
	procs := slices.Clone(j.procs)
	dead := j.maybeDieLocked()
	j.lock.Unlock()

	if dead {
		j.finishDead()
		return true
	}
	for _, p := range procs {
		p.Kill(retcode)
	}
	for _, child := range jobs {
		child.Kill(retcode)
	}
	return true
}

// Retcode is the code the job was killed with
func (j *JobDispatcher) Retcode() int64 {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.retcode
}

// OnZeroHandles lets an empty job die. A job with children lives on until
// its last child goes away.
func (j *JobDispatcher) OnZeroHandles() {
	j.lock.Lock()
	j.zeroHandles = true
	dead := j.maybeDieLocked()
	j.lock.Unlock()

	if dead {
		j.finishDead()
	}
}

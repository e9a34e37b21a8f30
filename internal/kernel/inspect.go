package kernel

import (
	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// ObjectInfo is a point-in-time view of one kernel object
type ObjectInfo struct {
	Koid        fx.Koid `json:"koid"`
	Type        string  `json:"type"`
	Name        string  `json:"name,omitempty"`
	RelatedKoid fx.Koid `json:"related_koid,omitempty"`
	Signals     string  `json:"signals"`
	HandleCount uint32  `json:"handle_count"`
}

// HandleInfo is one entry of a process's handle table
type HandleInfo struct {
	Value  string     `json:"value"`
	Rights string     `json:"rights"`
	Object ObjectInfo `json:"object"`
}

// ProcessInfo summarizes a process
type ProcessInfo struct {
	ObjectInfo
	State   string `json:"state"`
	Retcode int64  `json:"retcode"`
	Handles int    `json:"handles"`
}

// JobInfo is a job and everything below it
type JobInfo struct {
	ObjectInfo
	State     string        `json:"state"`
	MaxHeight uint32        `json:"max_height"`
	Policy    []PolicyInfo  `json:"policy,omitempty"`
	Processes []ProcessInfo `json:"processes"`
	Jobs      []JobInfo     `json:"jobs"`
}

// PolicyInfo is one explicitly set policy entry
type PolicyInfo struct {
	Condition string `json:"condition"`
	Action    string `json:"action"`
}

// Describe summarizes d
func Describe(d object.Dispatcher) ObjectInfo {
	base := d.Base()
	return ObjectInfo{
		Koid:        d.Koid(),
		Type:        d.Type().String(),
		Name:        base.Name(),
		RelatedKoid: d.RelatedKoid(),
		Signals:     base.Signals().String(),
		HandleCount: base.CurrentHandleCount(),
	}
}

func describeProcess(p *object.ProcessDispatcher) ProcessInfo {
	return ProcessInfo{
		ObjectInfo: Describe(p),
		State:      p.State().String(),
		Retcode:    p.Retcode(),
		Handles:    p.HandleTable().HandleCount(),
	}
}

func describeJob(j *object.JobDispatcher) JobInfo {
	info := JobInfo{
		ObjectInfo: Describe(j),
		State:      j.State().String(),
		MaxHeight:  j.MaxHeight(),
		Processes:  []ProcessInfo{},
		Jobs:       []JobInfo{},
	}
	for _, e := range j.Policy().Entries() {
		info.Policy = append(info.Policy, PolicyInfo{
			Condition: e.Condition.String(),
			Action:    e.Action.String(),
		})
	}
	for _, p := range j.Processes() {
		info.Processes = append(info.Processes, describeProcess(p))
	}
	for _, child := range j.ChildJobs() {
		info.Jobs = append(info.Jobs, describeJob(child))
	}
	return info
}

// JobTree snapshots the job tree from the root job down
func (k *Kernel) JobTree() JobInfo {
	return describeJob(k.rootJob)
}

// walk visits every live job and process, parents first, until fn returns
// false.
func (k *Kernel) walk(fn func(object.Dispatcher) bool) bool {
	var visit func(j *object.JobDispatcher) bool
	visit = func(j *object.JobDispatcher) bool {
		if !fn(j) {
			return false
		}
		for _, p := range j.Processes() {
			if !fn(p) {
				return false
			}
		}
		for _, child := range j.ChildJobs() {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	return visit(k.rootJob)
}

// FindProcess looks up a live process by koid
func (k *Kernel) FindProcess(koid fx.Koid) (*object.ProcessDispatcher, bool) {
	var found *object.ProcessDispatcher
	k.walk(func(d object.Dispatcher) bool {
		if p, ok := d.(*object.ProcessDispatcher); ok && p.Koid() == koid {
			found = p
			return false
		}
		return true
	})
	return found, found != nil
}

// FindObject looks up an object by koid. Jobs and processes are found in
// the job tree; other objects only while some process holds a handle to
// them.
func (k *Kernel) FindObject(koid fx.Koid) (object.Dispatcher, bool) {
	var found object.Dispatcher
	k.walk(func(d object.Dispatcher) bool {
		if d.Koid() == koid {
			found = d
			return false
		}
		p, ok := d.(*object.ProcessDispatcher)
		if !ok {
			return true
		}
		p.HandleTable().ForEachHandle(func(e object.HandleEntry) bool {
			if e.Dispatcher.Koid() == koid {
				found = e.Dispatcher
				return false
			}
			return true
		})
		return found == nil
	})
	return found, found != nil
}

// ProcessHandles lists the handle table of the process with koid
func (k *Kernel) ProcessHandles(koid fx.Koid) ([]HandleInfo, bool) {
	p, ok := k.FindProcess(koid)
	if !ok {
		return nil, false
	}
	handles := []HandleInfo{}
	p.HandleTable().ForEachHandle(func(e object.HandleEntry) bool {
		handles = append(handles, HandleInfo{
			Value:  e.Value.String(),
			Rights: e.Rights.String(),
			Object: Describe(e.Dispatcher),
		})
		return true
	})
	return handles, true
}

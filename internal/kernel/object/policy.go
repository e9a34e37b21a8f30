package object

import "github.com/meshx-org/fiber/internal/fx"

// JobPolicy maps each policy condition to an action. Object-creation
// conditions without an explicit entry fall back to PolicyNewAny.
type JobPolicy struct {
	actions [fx.PolicyConditionCount]fx.PolicyAction
	set     uint32
}

func (p JobPolicy) isSet(c fx.PolicyCondition) bool {
	return p.set&(1<<c) != 0
}

// Action returns what the policy does for condition
func (p JobPolicy) Action(condition fx.PolicyCondition) fx.PolicyAction {
	if condition >= fx.PolicyConditionCount {
		return fx.PolicyActionDeny
	}
	if condition.IsNewObject() && !p.isSet(condition) {
		return p.actions[fx.PolicyNewAny]
	}
	return p.actions[condition]
}

// Entries returns the explicitly set conditions, in condition order
func (p JobPolicy) Entries() []fx.PolicyBasic {
	var out []fx.PolicyBasic
	for c := fx.PolicyCondition(0); c < fx.PolicyConditionCount; c++ {
		if p.isSet(c) {
			out = append(out, fx.PolicyBasic{Condition: c, Action: p.actions[c]})
		}
	}
	return out
}

// AddBasicPolicy merges entries into a copy of p. In relative mode an entry
// that conflicts with an existing one is ignored; in absolute mode it fails
// with ALREADY_EXISTS. p is unchanged on failure.
func (p JobPolicy) AddBasicPolicy(mode uint32, entries []fx.PolicyBasic) (JobPolicy, fx.Status) {
	if mode != fx.JobPolicyRelative && mode != fx.JobPolicyAbsolute {
		return p, fx.ErrInvalidArgs
	}

	next := p
	for _, e := range entries {
		if e.Condition >= fx.PolicyConditionCount || e.Action >= fx.PolicyActionCount {
			return p, fx.ErrInvalidArgs
		}
		if next.isSet(e.Condition) && next.actions[e.Condition] != e.Action {
			if mode == fx.JobPolicyAbsolute {
				return p, fx.ErrAlreadyExists
			}
			continue
		}
		next.actions[e.Condition] = e.Action
		next.set |= 1 << e.Condition
	}
	return next, fx.OK
}

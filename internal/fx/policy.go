package fx

// Policy options, topics, conditions and actions for job_set_policy.
const (
	JobPolicyRelative uint32 = 0
	JobPolicyAbsolute uint32 = 1

	JobPolicyBasic      uint32 = 0
	JobPolicyTimerSlack uint32 = 1
)

// PolicyCondition names an event a job policy reacts to.
type PolicyCondition uint32

const (
	PolicyBadHandle          PolicyCondition = 0
	PolicyWrongObject        PolicyCondition = 1
	PolicyVmarWX             PolicyCondition = 2
	PolicyNewAny             PolicyCondition = 3
	PolicyNewVmo             PolicyCondition = 4
	PolicyNewChannel         PolicyCondition = 5
	PolicyNewEvent           PolicyCondition = 6
	PolicyNewEventPair       PolicyCondition = 7
	PolicyNewPort            PolicyCondition = 8
	PolicyNewSocket          PolicyCondition = 9
	PolicyNewFifo            PolicyCondition = 10
	PolicyNewTimer           PolicyCondition = 11
	PolicyNewProcess         PolicyCondition = 12
	PolicyNewProfile         PolicyCondition = 13
	PolicyNewPager           PolicyCondition = 14
	PolicyAmbientMarkVmoExec PolicyCondition = 15

	PolicyConditionCount = 16
)

var conditionNames = [PolicyConditionCount]string{
	"bad_handle", "wrong_object", "vmar_wx", "new_any", "new_vmo", "new_channel",
	"new_event", "new_eventpair", "new_port", "new_socket", "new_fifo", "new_timer",
	"new_process", "new_profile", "new_pager", "ambient_mark_vmo_exec",
}

func (c PolicyCondition) String() string {
	if c < PolicyConditionCount {
		return conditionNames[c]
	}
	return "unknown"
}

// ParsePolicyCondition maps a lower-case condition name back to its value.
func ParsePolicyCondition(name string) (PolicyCondition, bool) {
	for i, n := range conditionNames {
		if n == name {
			return PolicyCondition(i), true
		}
	}
	return 0, false
}

// IsNewObject reports whether c is one of the object-creation conditions
// that fall back to PolicyNewAny.
func (c PolicyCondition) IsNewObject() bool {
	return c > PolicyNewAny && c <= PolicyNewPager
}

// PolicyAction is what a job does when a condition triggers.
type PolicyAction uint32

const (
	PolicyActionAllow          PolicyAction = 0
	PolicyActionDeny           PolicyAction = 1
	PolicyActionAllowException PolicyAction = 2
	PolicyActionDenyException  PolicyAction = 3
	PolicyActionKill           PolicyAction = 4

	PolicyActionCount = 5
)

var actionNames = [PolicyActionCount]string{
	"allow", "deny", "allow_exception", "deny_exception", "kill",
}

func (a PolicyAction) String() string {
	if a < PolicyActionCount {
		return actionNames[a]
	}
	return "unknown"
}

// ParsePolicyAction maps a lower-case action name back to its value.
func ParsePolicyAction(name string) (PolicyAction, bool) {
	for i, n := range actionNames {
		if n == name {
			return PolicyAction(i), true
		}
	}
	return 0, false
}

// PolicyBasic is one entry of a JobPolicyBasic request.
type PolicyBasic struct {
	Condition PolicyCondition
	Action    PolicyAction
}

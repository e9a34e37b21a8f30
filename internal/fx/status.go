package fx

import "fmt"

// Status is the kernel's fixed status enumeration. Values are part of the
// syscall ABI and must not change.
type Status int32

const (
	OK Status = 0

	ErrInternal             Status = -1
	ErrNotSupported         Status = -2
	ErrNoResources          Status = -3
	ErrNoMemory             Status = -4
	ErrInterruptedRetry     Status = -6
	ErrInvalidArgs          Status = -10
	ErrBadHandle            Status = -11
	ErrWrongType            Status = -12
	ErrBadSyscall           Status = -13
	ErrOutOfRange           Status = -14
	ErrBufferTooSmall       Status = -15
	ErrBadState             Status = -20
	ErrTimedOut             Status = -21
	ErrShouldWait           Status = -22
	ErrCanceled             Status = -23
	ErrPeerClosed           Status = -24
	ErrNotFound             Status = -25
	ErrAlreadyExists        Status = -26
	ErrAlreadyBound         Status = -27
	ErrUnavailable          Status = -28
	ErrAccessDenied         Status = -30
	ErrIO                   Status = -40
	ErrIORefused            Status = -41
	ErrIODataIntegrity      Status = -42
	ErrIODataLoss           Status = -43
	ErrIONotPresent         Status = -44
	ErrIOOverrun            Status = -45
	ErrIOMissedDeadline     Status = -46
	ErrIOInvalid            Status = -47
	ErrBadPath              Status = -50
	ErrNotDir               Status = -51
	ErrNotFile              Status = -52
	ErrFileBig              Status = -53
	ErrNoSpace              Status = -54
	ErrNotEmpty             Status = -55
	ErrStop                 Status = -60
	ErrNext                 Status = -61
	ErrAsync                Status = -62
	ErrProtocolNotSupported Status = -70
	ErrAddressUnreachable   Status = -71
	ErrAddressInUse         Status = -72
	ErrNotConnected         Status = -73
)

var statusNames = map[Status]string{
	OK:                      "FX_OK",
	ErrInternal:             "FX_ERR_INTERNAL",
	ErrNotSupported:         "FX_ERR_NOT_SUPPORTED",
	ErrNoResources:          "FX_ERR_NO_RESOURCES",
	ErrNoMemory:             "FX_ERR_NO_MEMORY",
	ErrInterruptedRetry:     "FX_ERR_INTERRUPTED_RETRY",
	ErrInvalidArgs:          "FX_ERR_INVALID_ARGS",
	ErrBadHandle:            "FX_ERR_BAD_HANDLE",
	ErrWrongType:            "FX_ERR_WRONG_TYPE",
	ErrBadSyscall:           "FX_ERR_BAD_SYSCALL",
	ErrOutOfRange:           "FX_ERR_OUT_OF_RANGE",
	ErrBufferTooSmall:       "FX_ERR_BUFFER_TOO_SMALL",
	ErrBadState:             "FX_ERR_BAD_STATE",
	ErrTimedOut:             "FX_ERR_TIMED_OUT",
	ErrShouldWait:           "FX_ERR_SHOULD_WAIT",
	ErrCanceled:             "FX_ERR_CANCELED",
	ErrPeerClosed:           "FX_ERR_PEER_CLOSED",
	ErrNotFound:             "FX_ERR_NOT_FOUND",
	ErrAlreadyExists:        "FX_ERR_ALREADY_EXISTS",
	ErrAlreadyBound:         "FX_ERR_ALREADY_BOUND",
	ErrUnavailable:          "FX_ERR_UNAVAILABLE",
	ErrAccessDenied:         "FX_ERR_ACCESS_DENIED",
	ErrIO:                   "FX_ERR_IO",
	ErrIORefused:            "FX_ERR_IO_REFUSED",
	ErrIODataIntegrity:      "FX_ERR_IO_DATA_INTEGRITY",
	ErrIODataLoss:           "FX_ERR_IO_DATA_LOSS",
	ErrIONotPresent:         "FX_ERR_IO_NOT_PRESENT",
	ErrIOOverrun:            "FX_ERR_IO_OVERRUN",
	ErrIOMissedDeadline:     "FX_ERR_IO_MISSED_DEADLINE",
	ErrIOInvalid:            "FX_ERR_IO_INVALID",
	ErrBadPath:              "FX_ERR_BAD_PATH",
	ErrNotDir:               "FX_ERR_NOT_DIR",
	ErrNotFile:              "FX_ERR_NOT_FILE",
	ErrFileBig:              "FX_ERR_FILE_BIG",
	ErrNoSpace:              "FX_ERR_NO_SPACE",
	ErrNotEmpty:             "FX_ERR_NOT_EMPTY",
	ErrStop:                 "FX_ERR_STOP",
	ErrNext:                 "FX_ERR_NEXT",
	ErrAsync:                "FX_ERR_ASYNC",
	ErrProtocolNotSupported: "FX_ERR_PROTOCOL_NOT_SUPPORTED",
	ErrAddressUnreachable:   "FX_ERR_ADDRESS_UNREACHABLE",
	ErrAddressInUse:         "FX_ERR_ADDRESS_IN_USE",
	ErrNotConnected:         "FX_ERR_NOT_CONNECTED",
}

// String returns the ABI name of the status
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FX_ERR_UNKNOWN(%d)", int32(s))
}

// Error lets a non-OK status travel as a Go error.
func (s Status) Error() string {
	return s.String()
}

// Err returns nil for OK and the status itself otherwise.
func (s Status) Err() error {
	if s == OK {
		return nil
	}
	return s
}

// IsOK reports whether the status is OK
func (s Status) IsOK() bool {
	return s == OK
}

package fx

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{OK, "FX_OK"},
		{ErrBadHandle, "FX_ERR_BAD_HANDLE"},
		{ErrAccessDenied, "FX_ERR_ACCESS_DENIED"},
		{ErrPeerClosed, "FX_ERR_PEER_CLOSED"},
		{Status(-99), "FX_ERR_UNKNOWN(-99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			assert.Equal(t, tt.want, tt.status.Error())
		})
	}

	abi := []struct {
		status Status
		value  int32
		name   string
	}{
		{ErrInterruptedRetry, -6, "FX_ERR_INTERRUPTED_RETRY"},
		{ErrIO, -40, "FX_ERR_IO"},
		{ErrIOMissedDeadline, -46, "FX_ERR_IO_MISSED_DEADLINE"},
		{ErrIOInvalid, -47, "FX_ERR_IO_INVALID"},
		{ErrBadPath, -50, "FX_ERR_BAD_PATH"},
		{ErrNotEmpty, -55, "FX_ERR_NOT_EMPTY"},
		{ErrStop, -60, "FX_ERR_STOP"},
		{ErrAsync, -62, "FX_ERR_ASYNC"},
		{ErrProtocolNotSupported, -70, "FX_ERR_PROTOCOL_NOT_SUPPORTED"},
		{ErrAddressUnreachable, -71, "FX_ERR_ADDRESS_UNREACHABLE"},
		{ErrNotConnected, -73, "FX_ERR_NOT_CONNECTED"},
	}
	for _, tt := range abi {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.value, int32(tt.status))
			assert.Equal(t, tt.name, tt.status.String())
		})
	}
	for status, name := range statusNames {
		assert.NotContains(t, name, "UNKNOWN", "status %d", int32(status))
	}
	assert.Len(t, statusNames, 44)

	assert.NoError(t, OK.Err())
	assert.True(t, OK.IsOK())
	assert.False(t, ErrInternal.IsOK())

	wrapped := fmt.Errorf("create job: %w", ErrOutOfRange)
	assert.ErrorIs(t, wrapped, ErrOutOfRange)
	var status Status
	require.True(t, errors.As(wrapped, &status))
	assert.Equal(t, ErrOutOfRange, status)
}

func TestRights(t *testing.T) {
	assert.True(t, DefaultChannelRights.Has(RightRead|RightWrite))
	assert.False(t, DefaultChannelRights.Has(RightDuplicate), "channels cannot be duplicated")
	assert.False(t, DefaultPortRights.Has(RightWait))

	assert.True(t, RightRead.IsSubsetOf(RightsIO))
	assert.True(t, RightNone.IsSubsetOf(RightNone))
	assert.False(t, (RightRead | RightDestroy).IsSubsetOf(RightsIO))

	tests := []struct {
		rights Rights
		want   string
	}{
		{RightNone, "NONE"},
		{RightsIO, "READ|WRITE"},
		{RightDuplicate | RightSameRights, "DUPLICATE|SAME_RIGHTS"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rights.String())
		})
	}
}

func TestTimeAdd(t *testing.T) {
	tests := []struct {
		name string
		t    Time
		d    Duration
		want Time
	}{
		{"plain", 100, 50, 150},
		{"negative", 100, -150, -50},
		{"saturates up", TimeInfinite - 1, 10, TimeInfinite},
		{"infinite stays", TimeInfinite, Duration(math.MaxInt64), TimeInfinite},
		{"saturates down", TimeInfinitePast + 1, -10, TimeInfinitePast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.Add(tt.d))
		})
	}

	assert.Equal(t, Duration(1_500_000), FromDuration(1500*time.Microsecond))
}

func TestPolicyNames(t *testing.T) {
	for c := range PolicyCondition(PolicyConditionCount) {
		got, ok := ParsePolicyCondition(c.String())
		require.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}
	for a := range PolicyAction(PolicyActionCount) {
		got, ok := ParsePolicyAction(a.String())
		require.True(t, ok, a.String())
		assert.Equal(t, a, got)
	}

	_, ok := ParsePolicyCondition("NEW_VMO")
	assert.False(t, ok, "names are lower case")
	_, ok = ParsePolicyAction("explode")
	assert.False(t, ok)
	assert.Equal(t, "unknown", PolicyCondition(99).String())

	assert.True(t, PolicyNewProcess.IsNewObject())
	assert.True(t, PolicyNewPager.IsNewObject())
	assert.False(t, PolicyNewAny.IsNewObject())
	assert.False(t, PolicyBadHandle.IsNewObject())
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "0x000123", Handle(0x123).String())
	assert.Equal(t, "0x000009", (ChannelReadable | EventSignaled).String())
	assert.Equal(t, "channel", ObjTypeChannel.String())
	assert.Equal(t, "objtype(42)", ObjType(42).String())
	assert.Equal(t, "signal_rep", PacketTypeSignalRep.String())
}

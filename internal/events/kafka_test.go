package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessage(t *testing.T) {
	userID := uuid.New()
	e := New(TypeWithdrawalFailed, uuid.New(), userID, uuid.New(), 5000, "WD-1a2b3c4d")
	e.Reason = "1001: rejected"

	msg, err := toMessage(e)
	require.NoError(t, err)

	assert.Equal(t, userID.String(), string(msg.Key))
	assert.Equal(t, e.OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(TypeWithdrawalFailed), string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ledger.withdrawal.failed", decoded["type"])
	assert.Equal(t, "WD-1a2b3c4d", decoded["reference_id"])
	assert.Equal(t, float64(5000), decoded["amount"])
	assert.Equal(t, "1001: rejected", decoded["reason"])
}

func TestToMessage_OmitsEmptyReason(t *testing.T) {
	e := New(TypeDepositCredited, uuid.New(), uuid.New(), uuid.New(), 100, "TR-1")

	msg, err := toMessage(e)
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "reason")
}

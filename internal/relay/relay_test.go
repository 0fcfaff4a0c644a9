package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mteedev/lighthouse-bridge/internal/ids"
)

// A zero-value Engine is sufficient for these tests: both guarded paths
// return before any collaborator (Store/HS/Sim/Puppet) is dereferenced,
// which is exactly the property §8's boundary conditions assert.

func TestRelayFromSim_EchoGuardDropsZeroUUID(t *testing.T) {
	e := &Engine{}
	err := e.RelayFromSim(context.Background(), "group", ids.ZeroUUID, "Nobody", "hi")
	require.NoError(t, err)
}

func TestHandleEvent_IgnoresNonMessageEvents(t *testing.T) {
	e := &Engine{BotLocalpart: "opensim_bot"}
	err := e.handleEvent(context.Background(), &TransactionEvent{Type: "m.room.member", Sender: "@alice:hs"})
	require.NoError(t, err)
}

func TestHandleEvent_LoopGuardDropsPuppetSender(t *testing.T) {
	e := &Engine{BotLocalpart: "opensim_bot"}
	evt := &TransactionEvent{Type: "m.room.message", Sender: "@os_ffffffffffffffffffffffffffffffff:hs"}
	evt.Content.MsgType = "m.text"
	evt.Content.Body = "echo"
	err := e.handleEvent(context.Background(), evt)
	require.NoError(t, err)
}

func TestHandleEvent_LoopGuardDropsBotSender(t *testing.T) {
	e := &Engine{BotLocalpart: "opensim_bot"}
	evt := &TransactionEvent{Type: "m.room.message", Sender: "@opensim_bot:hs"}
	evt.Content.MsgType = "m.text"
	evt.Content.Body = "status update"
	err := e.handleEvent(context.Background(), evt)
	require.NoError(t, err)
}

func TestHandleEvent_DropsEmptyBody(t *testing.T) {
	e := &Engine{BotLocalpart: "opensim_bot"}
	evt := &TransactionEvent{Type: "m.room.message", Sender: "@alice:hs"}
	evt.Content.MsgType = "m.text"
	evt.Content.Body = "   "
	err := e.handleEvent(context.Background(), evt)
	assert.NoError(t, err)
}

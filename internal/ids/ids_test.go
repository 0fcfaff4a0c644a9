package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPuppetMXID(t *testing.T) {
	avatarID := "22222222-2222-2222-2222-222222222222"
	mxid := PuppetMXID(avatarID, "hs")
	assert.Equal(t, "@os_22222222222222222222222222222222:hs", mxid.String())
}

func TestGroupAlias(t *testing.T) {
	groupID := "11111111-1111-1111-1111-111111111111"
	assert.Equal(t, "#os_11111111:hs", GroupAlias(groupID, "hs"))
}

func TestNormalizeAvatarOrGroupID_StripsHypergridSuffix(t *testing.T) {
	normalized, err := NormalizeAvatarOrGroupID("22222222-2222-2222-2222-222222222222;https://grid.example/")
	require.NoError(t, err)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", normalized)
}

func TestNormalizeAvatarOrGroupID_RejectsGarbage(t *testing.T) {
	_, err := NormalizeAvatarOrGroupID("not-a-uuid")
	assert.Error(t, err)
}

func TestIsPuppetOrBotSender(t *testing.T) {
	assert.True(t, IsPuppetOrBotSender("@os_deadbeef:hs", "opensim_bot"))
	assert.True(t, IsPuppetOrBotSender("@opensim_bot:hs", "opensim_bot"))
	assert.False(t, IsPuppetOrBotSender("@alice:hs", "opensim_bot"))
}

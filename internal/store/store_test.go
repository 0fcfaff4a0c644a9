package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// seedSimSchema creates the Sim-owned tables this bridge only ever reads
// (os_groups_membership, os_groups_roles, os_avatar_profiles). In production
// these live in the Sim's own database and are never created or migrated by
// this bridge (see group_bridge_state's own upgrade, the only real one); the
// test sqlite database needs them declared somewhere to seed fixture rows,
// so they're created here rather than as a registered upgrade.
func seedSimSchema(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := st.Exec(ctx, `CREATE TABLE os_groups_membership (
		GroupID        CHAR(36) NOT NULL,
		PrincipalID    VARCHAR(255) NOT NULL,
		SelectedRoleID CHAR(36) NOT NULL
	)`)
	require.NoError(t, err)
	_, err = st.Exec(ctx, `CREATE TABLE os_groups_roles (
		GroupID CHAR(36) NOT NULL,
		RoleID  CHAR(36) NOT NULL,
		Powers  BIGINT NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = st.Exec(ctx, `CREATE TABLE os_avatar_profiles (
		PrincipalID CHAR(36) PRIMARY KEY,
		FirstName   VARCHAR(255),
		LastName    VARCHAR(255)
	)`)
	require.NoError(t, err)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, "sqlite3", "file:"+t.Name()+"?mode=memory&cache=shared", zerolog.Nop())
	require.NoError(t, err)
	seedSimSchema(t, st)
	return st
}

func TestGroupBridgeRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	gb, err := st.GetGroupBridge(ctx, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.Nil(t, gb)

	txn, err := st.BeginTxn(ctx)
	require.NoError(t, err)
	err = st.UpsertGroupBridge(ctx, txn, &GroupBridge{
		GroupID:   "11111111-1111-1111-1111-111111111111",
		Enabled:   true,
		RoomID:    "!abc:hs",
		EnabledBy: "22222222-2222-2222-2222-222222222222",
		EnabledAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	gb, err = st.GetGroupBridge(ctx, "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.NotNil(t, gb)
	require.True(t, gb.Enabled)
	require.Equal(t, "!abc:hs", gb.RoomID)

	byRoom, err := st.GetGroupBridgeByRoom(ctx, "!abc:hs")
	require.NoError(t, err)
	require.NotNil(t, byRoom)
	require.Equal(t, gb.GroupID, byRoom.GroupID)
}

func TestMemberRoleAndMaxGroupPower(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	groupID := "33333333-3333-3333-3333-333333333333"
	_, err := st.Exec(ctx, `INSERT INTO os_groups_roles (GroupID, RoleID, Powers) VALUES ($1, $2, $3)`, groupID, "role-owner", 100)
	require.NoError(t, err)
	_, err = st.Exec(ctx, `INSERT INTO os_groups_roles (GroupID, RoleID, Powers) VALUES ($1, $2, $3)`, groupID, "role-member", 10)
	require.NoError(t, err)
	_, err = st.Exec(ctx, `INSERT INTO os_groups_membership (GroupID, PrincipalID, SelectedRoleID) VALUES ($1, $2, $3)`, groupID, "avatar-1", "role-owner")
	require.NoError(t, err)
	_, err = st.Exec(ctx, `INSERT INTO os_groups_membership (GroupID, PrincipalID, SelectedRoleID) VALUES ($1, $2, $3)`, groupID, "avatar-2", "role-member")
	require.NoError(t, err)

	max, err := st.MaxGroupPower(ctx, groupID)
	require.NoError(t, err)
	require.EqualValues(t, 100, max)

	powers, err := st.MemberRole(ctx, groupID, "avatar-1")
	require.NoError(t, err)
	require.EqualValues(t, 100, powers)

	powers, err = st.MemberRole(ctx, groupID, "unknown-avatar")
	require.NoError(t, err)
	require.EqualValues(t, 0, powers)
}

func TestGroupMembersAndAvatarProfileFallback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	groupID := "44444444-4444-4444-4444-444444444444"
	_, err := st.Exec(ctx, `INSERT INTO os_groups_membership (GroupID, PrincipalID, SelectedRoleID) VALUES ($1, $2, $3)`, groupID, "avatar-a", "role-x")
	require.NoError(t, err)
	_, err = st.Exec(ctx, `INSERT INTO os_groups_membership (GroupID, PrincipalID, SelectedRoleID) VALUES ($1, $2, $3)`, groupID, "avatar-b;https://grid.example/", "role-x")
	require.NoError(t, err)

	members, err := st.GroupMembers(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	_, ok := st.AvatarProfileName(ctx, "avatar-a")
	require.False(t, ok)

	_, err = st.Exec(ctx, `INSERT INTO os_avatar_profiles (PrincipalID, FirstName, LastName) VALUES ($1, $2, $3)`, "avatar-a", "Alice", "Example")
	require.NoError(t, err)
	name, ok := st.AvatarProfileName(ctx, "avatar-a")
	require.True(t, ok)
	require.Equal(t, "Alice Example", name)
}

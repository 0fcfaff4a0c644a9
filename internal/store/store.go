// Package store wraps the pooled database handle described in §2 item 2: it
// owns group_bridge_state and reads (never writes) the Sim's group
// membership and role tables. Modeled on duo-matrix-wechat/internal/database
// and mautrix-slack/database, both thin *dbutil.Database wrappers with one
// query type per concern.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mteedev/lighthouse-bridge/internal/store/upgrades"
)

// GroupBridge is the single row type of group_bridge_state (§3).
type GroupBridge struct {
	GroupID    string
	Enabled    bool
	RoomID     string
	EnabledBy  string
	EnabledAt  time.Time
}

// Store is the pooled handle described in §2 item 2 and §5 "shared
// resources" (one *sql.DB pool, suggested size 5, acquired per logical
// operation and released on every exit path).
type Store struct {
	*dbutil.Database

	log zerolog.Logger
}

// Open constructs the pool from driver/URI and runs pending migrations, the
// same two-step boot sequence the teacher's bridge.Bridge performs
// internally before handing *database.Database to the rest of the process.
func Open(ctx context.Context, driver, uri string, log zerolog.Logger) (*Store, error) {
	rawDB, err := dbutil.NewFromConfig("lighthouse-bridge", dbutil.Config{
		PoolConfig: dbutil.PoolConfig{
			Type:         driver,
			URI:          uri,
			MaxOpenConns: 5,
			MaxIdleConns: 5,
		},
	}, dbutil.ZeroLogger(log))
	if err != nil {
		return nil, err
	}
	rawDB.UpgradeTable = upgrades.Table

	s := &Store{Database: rawDB, log: log.With().Str("component", "store").Logger()}
	if err := s.Database.Upgrade(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// GetGroupBridge returns the row for groupID, or nil if none exists.
func (s *Store) GetGroupBridge(ctx context.Context, groupID string) (*GroupBridge, error) {
	row := s.QueryRow(ctx, `
		SELECT group_uuid, enabled, room_id, enabled_by, enabled_at
		FROM group_bridge_state WHERE group_uuid=$1
	`, groupID)
	return scanGroupBridge(row)
}

// GetGroupBridgeByRoom resolves a RoomId back to a GroupId (§4.4 outbound
// step 4), or nil if the room is not a bridged one.
func (s *Store) GetGroupBridgeByRoom(ctx context.Context, roomID string) (*GroupBridge, error) {
	row := s.QueryRow(ctx, `
		SELECT group_uuid, enabled, room_id, enabled_by, enabled_at
		FROM group_bridge_state WHERE room_id=$1
	`, roomID)
	return scanGroupBridge(row)
}

func scanGroupBridge(row dbutil.Scannable) (*GroupBridge, error) {
	var gb GroupBridge
	var roomID, enabledBy sql.NullString
	var enabledAt sql.NullTime
	err := row.Scan(&gb.GroupID, &gb.Enabled, &roomID, &enabledBy, &enabledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	gb.RoomID = roomID.String
	gb.EnabledBy = enabledBy.String
	gb.EnabledAt = enabledAt.Time
	return &gb, nil
}

// ListEnabledGroupBridges backs GET /admin/bridge/list (§6).
func (s *Store) ListEnabledGroupBridges(ctx context.Context) ([]GroupBridge, error) {
	rows, err := s.Query(ctx, `
		SELECT group_uuid, enabled, room_id, enabled_by, enabled_at
		FROM group_bridge_state WHERE enabled=true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []GroupBridge
	for rows.Next() {
		gb, err := scanGroupBridge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *gb)
	}
	return result, rows.Err()
}

// UpsertGroupBridge is enableBridge's step 6 (§4.6), run inside the caller's
// transaction boundary via BeginTxn below or directly against the pool.
func (s *Store) UpsertGroupBridge(ctx context.Context, txn dbutil.Execable, gb *GroupBridge) error {
	_, err := txn.Exec(ctx, `
		INSERT INTO group_bridge_state (group_uuid, enabled, room_id, enabled_by, enabled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_uuid) DO UPDATE SET
			enabled=excluded.enabled, room_id=excluded.room_id,
			enabled_by=excluded.enabled_by, enabled_at=excluded.enabled_at
	`, gb.GroupID, gb.Enabled, gb.RoomID, gb.EnabledBy, gb.EnabledAt)
	return err
}

// BeginTxn opens the single database transaction boundary enableBridge
// requires (§4.6), mirroring mautrix-slack/historysync.go's use of
// dbutil.Transaction for multi-statement writes.
func (s *Store) BeginTxn(ctx context.Context) (dbutil.Transaction, error) {
	return s.Database.Begin(ctx)
}

// RolePower is one (RoleID, Powers) pair read from os_groups_roles.
type RolePower struct {
	RoleID string
	Powers int64
}

// MemberRole reads the Powers value of the role the member has selected
// (§4.5 step 1). Returns 0, nil if no matching row exists.
func (s *Store) MemberRole(ctx context.Context, groupID, principalID string) (int64, error) {
	row := s.QueryRow(ctx, `
		SELECT r.Powers
		FROM os_groups_membership m
		JOIN os_groups_roles r ON r.GroupID = m.GroupID AND r.RoleID = m.SelectedRoleID
		WHERE m.GroupID=$1 AND m.PrincipalID=$2
	`, groupID, principalID)
	var powers int64
	err := row.Scan(&powers)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return powers, err
}

// MaxGroupPower reads MAX(Powers) across every (member, role) join for a
// group (§4.5 step 2). Returns 1, nil if the join is empty (null MAX).
func (s *Store) MaxGroupPower(ctx context.Context, groupID string) (int64, error) {
	row := s.QueryRow(ctx, `
		SELECT MAX(r.Powers)
		FROM os_groups_membership m
		JOIN os_groups_roles r ON r.GroupID = m.GroupID AND r.RoleID = m.SelectedRoleID
		WHERE m.GroupID=$1
	`, groupID)
	var max sql.NullInt64
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64, nil
}

// GroupMembers lists every PrincipalID in a group for resyncGroup (§4.6).
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.Query(ctx, `SELECT PrincipalID FROM os_groups_membership WHERE GroupID=$1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var principals []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// AvatarProfileName reads the optional [EXPANSION] os_avatar_profiles fallback
// name for resync (SPEC_FULL §3, §9). ok is false if the table is absent,
// the row doesn't exist, or both name parts are empty — callers fall back
// to the AvatarId string exactly as spec.md describes.
func (s *Store) AvatarProfileName(ctx context.Context, principalID string) (name string, ok bool) {
	row := s.QueryRow(ctx, `SELECT FirstName, LastName FROM os_avatar_profiles WHERE PrincipalID=$1`, principalID)
	var first, last sql.NullString
	if err := row.Scan(&first, &last); err != nil {
		return "", false
	}
	full := first.String
	if last.String != "" {
		if full != "" {
			full += " "
		}
		full += last.String
	}
	if full == "" {
		return "", false
	}
	return full, true
}

// Package admin implements the two Bridge Admin operations of §4.6:
// enabling a bridge for a group (room creation, founder seeding, initial
// power levels) and resyncing a group's full puppet set.
package admin

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
	"github.com/mteedev/lighthouse-bridge/internal/hsclient"
	"github.com/mteedev/lighthouse-bridge/internal/ids"
	"github.com/mteedev/lighthouse-bridge/internal/puppet"
	"github.com/mteedev/lighthouse-bridge/internal/store"
)

type Engine struct {
	HS             *hsclient.Client
	Store          *store.Store
	Puppet         *puppet.Engine
	HomeserverName string

	log zerolog.Logger
}

func New(hs *hsclient.Client, st *store.Store, pe *puppet.Engine, homeserverName string, log zerolog.Logger) *Engine {
	return &Engine{
		HS:             hs,
		Store:          st,
		Puppet:         pe,
		HomeserverName: homeserverName,
		log:            log.With().Str("component", "admin").Logger(),
	}
}

// EnableBridge is §4.6 enableBridge. Under a single database transaction
// boundary it is idempotent: a second call for an already-enabled group
// returns the existing RoomId without side effects.
func (e *Engine) EnableBridge(ctx context.Context, groupID, groupName, founderAvatarID string) (id.RoomID, error) {
	existing, err := e.Store.GetGroupBridge(ctx, groupID)
	if err != nil {
		return "", berr.HSAPIf(err, "looking up existing group bridge")
	}
	if existing != nil && existing.Enabled {
		return id.RoomID(existing.RoomID), nil
	}

	alias := ids.GroupAlias(groupID, e.HomeserverName)
	room, err := e.HS.LookupRoomByAlias(ctx, alias)
	if err != nil {
		return "", err
	}

	if room == "" {
		room, err = e.HS.CreateRoom(ctx, &mautrix.ReqCreateRoom{
			Visibility:    "private",
			Name:          "OpenSim | " + groupName,
			Topic:         "Bridged Sim group " + groupID,
			Preset:        "private_chat",
			RoomAliasName: ids.GroupAliasLocalpart(groupID),
		})
		if err != nil {
			return "", err
		}
	}

	// Runs for the adopt-existing-alias path too, not just the created-room
	// path: founder ensure/join/power-levels are idempotent, so re-running
	// them against an already-bridged room is harmless and keeps the founder
	// state correct even if a prior enable call died after CreateRoom.
	founderMXID, err := e.Puppet.EnsureUser(ctx, founderAvatarID)
	if err != nil {
		return "", err
	}
	if err := e.Puppet.EnsureJoined(ctx, room, founderMXID); err != nil {
		return "", err
	}

	pl := puppet.DefaultPowerLevels()
	pl.Users[e.HS.BotMXID()] = 100
	pl.Users[founderMXID] = 100
	if err := e.HS.SetPowerLevelsAs(ctx, e.HS.BotMXID(), room, pl); err != nil {
		return "", err
	}

	txn, err := e.Store.BeginTxn(ctx)
	if err != nil {
		return "", berr.HSAPIf(err, "beginning enable-bridge transaction")
	}
	gb := &store.GroupBridge{
		GroupID:   groupID,
		Enabled:   true,
		RoomID:    string(room),
		EnabledBy: founderAvatarID,
		EnabledAt: time.Now(),
	}
	if err := e.Store.UpsertGroupBridge(ctx, txn, gb); err != nil {
		txn.Rollback()
		return "", berr.HSAPIf(err, "upserting group bridge row")
	}
	if err := txn.Commit(); err != nil {
		return "", berr.HSAPIf(err, "committing enable-bridge transaction")
	}

	return room, nil
}

// ResyncGroup is §4.6 resyncGroup: require an enabled row, then run the
// full puppet pipeline with force=true over every Sim membership row.
// Per-member failures are logged and never abort the batch.
func (e *Engine) ResyncGroup(ctx context.Context, groupID string) error {
	gb, err := e.Store.GetGroupBridge(ctx, groupID)
	if err != nil {
		return berr.HSAPIf(err, "looking up group bridge")
	}
	if gb == nil || !gb.Enabled {
		return berr.NotEnabledf("group %s has no enabled bridge", groupID)
	}
	room := id.RoomID(gb.RoomID)

	principals, err := e.Store.GroupMembers(ctx, groupID)
	if err != nil {
		return berr.HSAPIf(err, "reading group members")
	}

	for _, raw := range principals {
		avatarID, err := ids.NormalizeAvatarOrGroupID(raw)
		if err != nil {
			e.log.Warn().Err(err).Str("principal", raw).Msg("Skipping non-UUID principal during resync")
			continue
		}
		if err := e.resyncMember(ctx, room, groupID, avatarID); err != nil {
			e.log.Warn().Err(err).Str("avatar_id", avatarID).Msg("Failed to resync member")
		}
	}
	return nil
}

func (e *Engine) resyncMember(ctx context.Context, room id.RoomID, groupID, avatarID string) error {
	mxid, err := e.Puppet.EnsureUser(ctx, avatarID)
	if err != nil {
		return err
	}

	name, ok := e.Store.AvatarProfileName(ctx, avatarID)
	if !ok {
		name = avatarID
	}
	if err := e.Puppet.EnsureDisplayName(ctx, mxid, name, true); err != nil {
		return err
	}
	e.Puppet.EnsureAvatar(ctx, mxid, avatarID, true)
	if err := e.Puppet.EnsureJoined(ctx, room, mxid); err != nil {
		return err
	}
	return e.Puppet.SyncPowerLevel(ctx, room, mxid, groupID, avatarID, true)
}

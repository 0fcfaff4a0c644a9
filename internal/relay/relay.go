// Package relay implements the two directional pipelines of §4.4: inbound
// Sim webhook → puppet send, and inbound HS transaction → Sim inject.
package relay

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
	"github.com/mteedev/lighthouse-bridge/internal/hsclient"
	"github.com/mteedev/lighthouse-bridge/internal/ids"
	"github.com/mteedev/lighthouse-bridge/internal/puppet"
	"github.com/mteedev/lighthouse-bridge/internal/simclient"
	"github.com/mteedev/lighthouse-bridge/internal/store"
)

type Engine struct {
	HS           *hsclient.Client
	Sim          *simclient.Client
	Store        *store.Store
	Puppet       *puppet.Engine
	BotLocalpart string

	log zerolog.Logger
}

func New(hs *hsclient.Client, sim *simclient.Client, st *store.Store, pe *puppet.Engine, botLocalpart string, log zerolog.Logger) *Engine {
	return &Engine{
		HS:           hs,
		Sim:          sim,
		Store:        st,
		Puppet:       pe,
		BotLocalpart: botLocalpart,
		log:          log.With().Str("component", "relay").Logger(),
	}
}

// RelayFromSim is the inbound Sim→HS pipeline of §4.4.
func (e *Engine) RelayFromSim(ctx context.Context, groupID, senderID, senderName, message string) error {
	if senderID == ids.ZeroUUID {
		return nil
	}

	gb, err := e.Store.GetGroupBridge(ctx, groupID)
	if err != nil {
		return berr.HSAPIf(err, "looking up group bridge for %s", groupID)
	}
	if gb == nil || !gb.Enabled {
		return nil
	}
	room := id.RoomID(gb.RoomID)

	mxid, err := e.Puppet.EnsureUser(ctx, senderID)
	if err != nil {
		return err
	}
	if err := e.Puppet.EnsureDisplayName(ctx, mxid, senderName, false); err != nil {
		return err
	}
	e.Puppet.EnsureAvatar(ctx, mxid, senderID, false)
	if err := e.Puppet.EnsureJoined(ctx, room, mxid); err != nil {
		return err
	}
	if err := e.Puppet.SyncPowerLevel(ctx, room, mxid, groupID, senderID, false); err != nil {
		return err
	}

	txnID := uuid.New().String()
	return e.HS.SendMessageAs(ctx, mxid, room, txnID, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    message,
	})
}

// Transaction mirrors the {events:[...]} body the AppService pushes.
type Transaction struct {
	Events []TransactionEvent `json:"events"`
}

type TransactionEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	RoomID  string `json:"room_id"`
	Content struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
	Unsigned struct {
		SenderDisplayName string `json:"sender_display_name"`
	} `json:"unsigned"`
}

// HandleTransaction is the outbound HS→Sim pipeline of §4.4. Individual
// event failures are logged and never abort the rest of the batch — the
// AppService contract requires this endpoint to always answer 200 once
// authenticated.
func (e *Engine) HandleTransaction(ctx context.Context, txn *Transaction) {
	for _, evt := range txn.Events {
		if err := e.handleEvent(ctx, &evt); err != nil {
			e.log.Warn().Err(err).Str("sender", evt.Sender).Str("room_id", evt.RoomID).Msg("Failed to relay transaction event")
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt *TransactionEvent) error {
	if evt.Type != "m.room.message" {
		return nil
	}
	if ids.IsPuppetOrBotSender(id.UserID(evt.Sender), e.BotLocalpart) {
		return nil
	}
	if evt.Content.MsgType != "m.text" {
		return nil
	}
	body := strings.TrimSpace(evt.Content.Body)
	if body == "" {
		return nil
	}

	gb, err := e.Store.GetGroupBridgeByRoom(ctx, evt.RoomID)
	if err != nil {
		return berr.HSAPIf(err, "resolving room %s to group", evt.RoomID)
	}
	if gb == nil {
		return nil
	}

	name := evt.Unsigned.SenderDisplayName
	if name == "" {
		name = evt.Sender
	}

	return e.Sim.Inject(ctx, gb.GroupID, name, body)
}

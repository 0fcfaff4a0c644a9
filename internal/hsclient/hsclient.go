// Package hsclient is the thin typed HTTP client of §4.1: every request
// carries the bridge's AppService bearer token, and "As" methods additionally
// impersonate a puppet via the AppService ?user_id= mechanism. Built on
// maunium.net/go/mautrix/appservice, the library every repo in the pack is
// built on (duo-matrix-wechat, mautrix-slack, hanthor-mattermost-matrix-bridge).
package hsclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
)

// requestTimeout bounds every HS call made through the AppService's shared
// HTTP client, the same 10s budget simclient and the avatar fetch use (§5).
const requestTimeout = 10 * time.Second

// Profile mirrors the subset of a /profile response the Puppet Engine needs.
type Profile struct {
	DisplayName string
	AvatarURL   id.ContentURI
}

// Client wraps one *appservice.AppService for the lifetime of the process
// (§9 "process-wide state" — constructed once at boot, passed explicitly).
type Client struct {
	AS *appservice.AppService
}

// New builds the AppService instance from already-validated config values.
// Mirrors appservice.Create() (other_examples/…/appservice.go) but skips the
// registration-file/YAML loading path: this bridge's three secrets live in
// its own config.Config, not a separate registration.yaml.
func New(homeserverURL, homeserverDomain, botLocalpart, asToken, hsToken string) *Client {
	as := appservice.Create()
	as.HTTPClient.Timeout = requestTimeout
	as.HomeserverURL = homeserverURL
	as.HomeserverDomain = homeserverDomain
	as.Registration = &appservice.Registration{
		AppToken:        asToken,
		ServerToken:     hsToken,
		SenderLocalpart: botLocalpart,
	}
	return &Client{AS: as}
}

func (c *Client) Bot() *appservice.IntentAPI {
	return c.AS.BotIntent()
}

func (c *Client) Intent(mxid id.UserID) *appservice.IntentAPI {
	return c.AS.Intent(mxid)
}

func (c *Client) BotMXID() id.UserID {
	return c.AS.BotMXID()
}

// RegisterPuppet posts to /register?kind=user (§4.1), treating M_USER_IN_USE
// as success the way duo-matrix-wechat/internal/user.go treats
// "already in room" errors as success for EnsureJoined.
func (c *Client) RegisterPuppet(ctx context.Context, localpart string) error {
	intent := c.AS.Intent(id.NewUserID(localpart, c.AS.HomeserverDomain))
	err := intent.EnsureRegistered(ctx)
	if err == nil || isErrCode(err, mautrix.MUserInUse) {
		return nil
	}
	return berr.HSAPIf(err, "registering puppet %s", localpart)
}

// LookupRoomByAlias resolves an alias to a RoomId, returning "" if unknown.
func (c *Client) LookupRoomByAlias(ctx context.Context, alias string) (id.RoomID, error) {
	resp, err := c.Bot().ResolveAlias(ctx, id.RoomAlias(alias))
	if err != nil {
		if isErrCode(err, mautrix.MNotFound) {
			return "", nil
		}
		return "", berr.HSAPIf(err, "resolving alias %s", alias)
	}
	return resp.RoomID, nil
}

// CreateRoom creates a new room per §4.6 step 3.
func (c *Client) CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (id.RoomID, error) {
	resp, err := c.Bot().CreateRoom(ctx, req)
	if err != nil {
		return "", berr.HSAPIf(err, "creating room")
	}
	return resp.RoomID, nil
}

// Invite invites mxid into room as the bot.
func (c *Client) Invite(ctx context.Context, room id.RoomID, mxid id.UserID) error {
	_, err := c.Bot().InviteUser(ctx, room, &mautrix.ReqInviteUser{UserID: mxid})
	if err != nil && !isErrCode(err, mautrix.MAlreadyJoined) && !isAlreadyInvited(err) {
		return berr.HSAPIf(err, "inviting %s to %s", mxid, room)
	}
	return nil
}

// JoinAs joins room impersonating mxid, treating M_ALREADY_JOINED as success.
func (c *Client) JoinAs(ctx context.Context, room id.RoomID, mxid id.UserID) error {
	err := c.Intent(mxid).EnsureJoined(ctx, room)
	if err != nil && !isErrCode(err, mautrix.MAlreadyJoined) {
		return berr.HSAPIf(err, "joining %s to %s", mxid, room)
	}
	return nil
}

// GetProfile fetches the current profile of mxid as the puppet itself.
func (c *Client) GetProfile(ctx context.Context, mxid id.UserID) (*Profile, error) {
	resp, err := c.Intent(mxid).GetProfile(ctx, mxid)
	if err != nil {
		if isErrCode(err, mautrix.MNotFound) {
			return &Profile{}, nil
		}
		return nil, berr.HSAPIf(err, "getting profile for %s", mxid)
	}
	return &Profile{DisplayName: resp.DisplayName, AvatarURL: resp.AvatarURL}, nil
}

// SetDisplayNameAs PUTs the puppet's display name.
func (c *Client) SetDisplayNameAs(ctx context.Context, mxid id.UserID, name string) error {
	if err := c.Intent(mxid).SetDisplayName(ctx, name); err != nil {
		return berr.HSAPIf(err, "setting display name for %s", mxid)
	}
	return nil
}

// SetAvatarUrlAs PUTs the puppet's avatar mxc URI.
func (c *Client) SetAvatarUrlAs(ctx context.Context, mxid id.UserID, mxc id.ContentURI) error {
	if err := c.Intent(mxid).SetAvatarURL(ctx, mxc); err != nil {
		return berr.HSAPIf(err, "setting avatar for %s", mxid)
	}
	return nil
}

// UploadMediaAs uploads bytes to the media repo impersonating mxid.
func (c *Client) UploadMediaAs(ctx context.Context, mxid id.UserID, data []byte, mime string) (id.ContentURI, error) {
	resp, err := c.Intent(mxid).UploadBytes(ctx, data, mime)
	if err != nil {
		return id.ContentURI{}, berr.HSAPIf(err, "uploading media for %s", mxid)
	}
	return resp.ContentURI, nil
}

// GetPowerLevels reads the room's current power-level state event.
func (c *Client) GetPowerLevels(ctx context.Context, room id.RoomID) (*event.PowerLevelsEventContent, error) {
	pl, err := c.Bot().PowerLevels(ctx, room)
	if err != nil {
		return nil, berr.HSAPIf(err, "getting power levels for %s", room)
	}
	return pl, nil
}

// SetPowerLevelsAs PUTs the power-level state event impersonating mxid —
// spec.md §4.3 requires this always be the bot, since only the bot holds
// authority to mutate power levels.
func (c *Client) SetPowerLevelsAs(ctx context.Context, mxid id.UserID, room id.RoomID, pl *event.PowerLevelsEventContent) error {
	if _, err := c.Intent(mxid).SetPowerLevels(ctx, room, pl); err != nil {
		return berr.HSAPIf(err, "setting power levels for %s", room)
	}
	return nil
}

// SendMessageAs sends a pre-built m.room.message event impersonating mxid,
// with a caller-supplied transaction ID (§4.4 step 4).
func (c *Client) SendMessageAs(ctx context.Context, mxid id.UserID, room id.RoomID, txnID string, content *event.MessageEventContent) error {
	_, err := c.Intent(mxid).SendMessageEvent(ctx, room, event.EventMessage, content, mautrix.ReqSendEvent{TransactionID: txnID})
	if err != nil {
		return berr.HSAPIf(err, "sending message to %s as %s", room, mxid)
	}
	return nil
}

func isErrCode(err error, code mautrix.RespErrorCode) bool {
	var httpErr mautrix.HTTPError
	return errors.As(err, &httpErr) && httpErr.RespError != nil && httpErr.RespError.ErrCode == code
}

// isAlreadyInvited covers homeservers that return a 403 with a message
// rather than a distinct errcode for a repeat invite — the same
// string-matching fallback duo-matrix-wechat/internal/user.go and
// mautrix-slack/user.go use for "is already in the room".
func isAlreadyInvited(err error) bool {
	var httpErr mautrix.HTTPError
	return errors.As(err, &httpErr) && httpErr.RespError != nil &&
		strings.Contains(httpErr.RespError.Err, "is already in the room")
}

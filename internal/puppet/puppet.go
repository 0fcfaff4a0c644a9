// Package puppet implements the five idempotent operations of §4.3 that
// keep a Sim avatar's HS puppet user converged on display name, avatar
// image, room membership and power level. Every operation is safe to
// re-run (§8 property 4); the HS itself is the point of truth (§5
// "ordering guarantees" — last writer wins is acceptable).
package puppet

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mteedev/lighthouse-bridge/internal/berr"
	"github.com/mteedev/lighthouse-bridge/internal/hsclient"
	"github.com/mteedev/lighthouse-bridge/internal/ids"
	"github.com/mteedev/lighthouse-bridge/internal/store"
)

const (
	avatarFetchTimeout = 10 * time.Second
	maxDisplayNameLen  = 64
)

// defaultPowerLevels is the scaffold invariant 2 names: state=50, users=0,
// events=0, invite=50, kick=50, ban=75, redact=50.
func defaultPowerLevels() *event.PowerLevelsEventContent {
	return &event.PowerLevelsEventContent{
		UsersDefault:    0,
		EventsDefault:   0,
		StateDefaultPtr: ptrInt(50),
		InvitePtr:       ptrInt(50),
		KickPtr:         ptrInt(50),
		BanPtr:          ptrInt(75),
		RedactPtr:       ptrInt(50),
		Users:           map[id.UserID]int{},
	}
}

func ptrInt(v int) *int { return &v }

// Engine bundles the collaborators every operation needs: the HS Client,
// the Store (for power-level reads), and the avatar base URL template.
type Engine struct {
	HS             *hsclient.Client
	Store          *store.Store
	AvatarBaseURL  string
	HomeserverName string
	HTTPClient     *http.Client

	log zerolog.Logger
}

func New(hs *hsclient.Client, st *store.Store, avatarBaseURL, homeserverName string, log zerolog.Logger) *Engine {
	return &Engine{
		HS:             hs,
		Store:          st,
		AvatarBaseURL:  avatarBaseURL,
		HomeserverName: homeserverName,
		HTTPClient:     &http.Client{Timeout: avatarFetchTimeout},
		log:            log.With().Str("component", "puppet").Logger(),
	}
}

// EnsureUser registers the puppet if not already registered (§4.3
// ensureUser). Idempotent via the M_USER_IN_USE rule in hsclient.
func (e *Engine) EnsureUser(ctx context.Context, avatarID string) (id.UserID, error) {
	localpart := ids.PuppetLocalpart(avatarID)
	if err := e.HS.RegisterPuppet(ctx, localpart); err != nil {
		return "", err
	}
	return ids.PuppetMXID(avatarID, e.HomeserverName), nil
}

// EnsureDisplayName trims/truncates desired and PUTs it when force is set
// or the current name differs (§4.3 ensureDisplayName).
func (e *Engine) EnsureDisplayName(ctx context.Context, mxid id.UserID, desired string, force bool) error {
	name := strings.TrimSpace(desired)
	if name == "" {
		return nil
	}
	if runes := []rune(name); len(runes) > maxDisplayNameLen {
		name = string(runes[:maxDisplayNameLen])
	}

	if !force {
		profile, err := e.HS.GetProfile(ctx, mxid)
		if err != nil {
			return err
		}
		if profile.DisplayName == name {
			return nil
		}
	}
	return e.HS.SetDisplayNameAs(ctx, mxid, name)
}

// EnsureAvatar downloads and uploads the puppet's avatar image (§4.3
// ensureAvatar). Any HTTP failure along this path is swallowed: avatar
// absence is not worth failing a message over.
func (e *Engine) EnsureAvatar(ctx context.Context, mxid id.UserID, avatarID string, force bool) {
	if e.AvatarBaseURL == "" {
		return
	}

	if !force {
		profile, err := e.HS.GetProfile(ctx, mxid)
		if err == nil && !profile.AvatarURL.IsEmpty() {
			return
		}
	}

	url := strings.ReplaceAll(e.AvatarBaseURL, "{uuid}", avatarID)
	data, err := e.fetchAvatar(ctx, url)
	if err != nil {
		e.log.Warn().Err(err).Str("avatar_id", avatarID).Msg("Failed to fetch avatar image")
		return
	}

	mime := "image/png"
	if detected := mimetype.Detect(data); !detected.Is("application/octet-stream") {
		mime = detected.String()
	}

	mxc, err := e.HS.UploadMediaAs(ctx, mxid, data, mime)
	if err != nil {
		e.log.Warn().Err(err).Str("avatar_id", avatarID).Msg("Failed to upload avatar")
		return
	}
	if err := e.HS.SetAvatarUrlAs(ctx, mxid, mxc); err != nil {
		e.log.Warn().Err(err).Str("avatar_id", avatarID).Msg("Failed to set avatar url")
	}
}

func (e *Engine) fetchAvatar(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, avatarFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &avatarStatusError{resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type avatarStatusError struct{ status int }

func (e *avatarStatusError) Error() string {
	return "avatar endpoint returned non-2xx status"
}

// EnsureJoined invites via the bot then joins as the puppet, ignoring
// "already invited"/"already joined" (§4.3 ensureJoined, §3 invariant 4).
func (e *Engine) EnsureJoined(ctx context.Context, room id.RoomID, mxid id.UserID) error {
	if err := e.HS.Invite(ctx, room, mxid); err != nil {
		return err
	}
	return e.HS.JoinAs(ctx, room, mxid)
}

// SyncPowerLevel computes the desired power level (§4.5) and, unless it
// already matches and force is false, PUTs the state event impersonating
// the bot — only the bot has authority to mutate power levels (§4.3
// syncPowerLevel).
func (e *Engine) SyncPowerLevel(ctx context.Context, room id.RoomID, mxid id.UserID, groupID, avatarID string, force bool) error {
	desired, err := e.ComputePowerLevel(ctx, groupID, avatarID)
	if err != nil {
		return err
	}

	pl, err := e.HS.GetPowerLevels(ctx, room)
	if err != nil {
		return err
	}
	current, ok := pl.Users[mxid]
	if !force && ok && current == desired {
		return nil
	}
	if pl.Users == nil {
		pl.Users = map[id.UserID]int{}
	}
	pl.Users[mxid] = desired
	return e.HS.SetPowerLevelsAs(ctx, e.HS.BotMXID(), room, pl)
}

// ComputePowerLevel is the pure-given-a-Store-read formula of §4.5,
// unit-testable independent of the HS (§8 property 3).
func (e *Engine) ComputePowerLevel(ctx context.Context, groupID, avatarID string) (int, error) {
	powers, err := e.Store.MemberRole(ctx, groupID, avatarID)
	if err != nil {
		return 0, berr.HSAPIf(err, "reading member role power")
	}
	maxPowers, err := e.Store.MaxGroupPower(ctx, groupID)
	if err != nil {
		return 0, berr.HSAPIf(err, "reading max group power")
	}
	return PowerLevelFromCounts(powers, maxPowers), nil
}

// PowerLevelFromCounts is the bare arithmetic of §4.5 step 3, split out so
// it can be tested without any collaborator at all.
func PowerLevelFromCounts(powers, maxPowers int64) int {
	if maxPowers == 0 {
		maxPowers = 1
	}
	if 2*powers >= maxPowers {
		return 100
	}
	return 0
}

// DefaultPowerLevels exposes the invariant-2 scaffold for Bridge Admin's
// initial room power-level event.
func DefaultPowerLevels() *event.PowerLevelsEventContent {
	return defaultPowerLevels()
}

// Package ids implements the identifier rules of §3: AvatarId/GroupId
// normalization, puppet MXID/localpart derivation, and room alias naming.
// Every function here is pure so the invariants of §8 can be tested without
// a homeserver or database.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"maunium.net/go/mautrix/id"
)

// ZeroUUID is the Sim's reserved echo-guard sentinel (§3 invariant 5).
const ZeroUUID = "00000000-0000-0000-0000-000000000000"

// NormalizeAvatarOrGroupID strips a trailing ";<url>" hypergrid suffix and
// validates what remains as a UUID, returning it in canonical hyphenated
// lower-case form. Used for both AvatarId and GroupId, which share the
// same 128-bit/36-char-hex shape (§3).
func NormalizeAvatarOrGroupID(raw string) (string, error) {
	uuidPart := raw
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		uuidPart = raw[:idx]
	}
	parsed, err := uuid.Parse(uuidPart)
	if err != nil {
		return "", fmt.Errorf("invalid uuid %q: %w", raw, err)
	}
	return parsed.String(), nil
}

// HexNoDash renders a normalized UUID as 32 lower-case hex characters with
// no hyphens, the building block for both puppet localparts (§3) and group
// aliases (§8 property 2).
func HexNoDash(normalized string) string {
	return strings.ReplaceAll(normalized, "-", "")
}

// PuppetLocalpart returns "os_<32-hex>" for an AvatarId.
func PuppetLocalpart(avatarID string) string {
	return "os_" + HexNoDash(avatarID)
}

// PuppetMXID returns "@os_<32-hex>:<homeserver>" for an AvatarId (§8
// property 1).
func PuppetMXID(avatarID, homeserver string) id.UserID {
	return id.NewUserID(PuppetLocalpart(avatarID), homeserver)
}

// BotMXID returns "@<bot_localpart>:<homeserver>".
func BotMXID(botLocalpart, homeserver string) id.UserID {
	return id.NewUserID(botLocalpart, homeserver)
}

// GroupAliasLocalpart returns "os_<first-8-hex-of-GroupId>" (§8 property 2).
func GroupAliasLocalpart(groupID string) string {
	hex := HexNoDash(groupID)
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "os_" + hex
}

// GroupAlias returns the full "#os_xxxxxxxx:<homeserver>" room alias.
func GroupAlias(groupID, homeserver string) string {
	return "#" + GroupAliasLocalpart(groupID) + ":" + homeserver
}

// IsPuppetOrBotSender reports whether an event sender MXID belongs to this
// bridge: a puppet (localpart "os_...") or the bot itself. Used by the
// outbound loop guard (§4.4 step 2, §8 property 5).
func IsPuppetOrBotSender(sender id.UserID, botLocalpart string) bool {
	s := string(sender)
	return strings.HasPrefix(s, "@os_") || strings.HasPrefix(s, "@"+botLocalpart)
}

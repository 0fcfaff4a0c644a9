// Package upgrades holds the schema migrations for the bridge's own table,
// registered the way mautrix-slack/database/upgrades registers its table:
// a package-level dbutil.UpgradeTable populated from embedded .sql files.
package upgrades

import (
	"embed"

	"go.mau.fi/util/dbutil"
)

var Table dbutil.UpgradeTable

//go:embed *.sql
var rawUpgrades embed.FS

func init() {
	Table.RegisterFS(rawUpgrades)
}

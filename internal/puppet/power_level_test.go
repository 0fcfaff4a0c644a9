package puppet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerLevelFromCounts(t *testing.T) {
	cases := []struct {
		name      string
		powers    int64
		maxPowers int64
		want      int
	}{
		{"no role", 0, 1, 0},
		{"exact half", 5, 10, 100},
		{"below half", 4, 10, 0},
		{"null max treated as one", 1, 0, 100},
		{"zero powers zero max", 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, PowerLevelFromCounts(c.powers, c.maxPowers))
		})
	}
}

func TestPowerLevelFromCounts_AlwaysBinary(t *testing.T) {
	for powers := int64(0); powers < 20; powers++ {
		for maxPowers := int64(0); maxPowers < 20; maxPowers++ {
			got := PowerLevelFromCounts(powers, maxPowers)
			if got != 0 && got != 100 {
				t.Fatalf("power level %d not in {0, 100} for powers=%d maxPowers=%d", got, powers, maxPowers)
			}
		}
	}
}

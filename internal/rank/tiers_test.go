package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForRatingBands(t *testing.T) {
	tests := []struct {
		rating int
		want   string
	}{
		{0, "Bronze 1"},
		{765, "Bronze 1"},
		{766, "Bronze 2"},
		{914, "Bronze 3"},
		{1055, "Silver 1"},
		{1189, "Silver 2"},
		{1316, "Silver 3"},
		{1436, "Gold 1"},
		{1549, "Gold 2"},
		{1654, "Gold 3"},
		{1752, "Platinum 1"},
		{1843, "Platinum 2"},
		{1928, "Platinum 3"},
		{2004, "Diamond 1"},
		{2074, "Diamond 2"},
		{2137, "Diamond 3"},
		{2191, "Diamond 3"},
		{2192, "Master 1"},
		{2200, "Master 1"},
		{2275, "Master 2"},
		{2349, "Master 2"},
		{2350, "Master 3"},
		{3000, "Master 3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForRating(tt.rating, NoPlacement, NoPlacement), "rating %d", tt.rating)
	}
}

func TestTierForRatingGrandmasterOverlay(t *testing.T) {
	assert.Equal(t, Grandmaster, TierForRating(2200, 50, NoPlacement))
	assert.Equal(t, Grandmaster, TierForRating(2200, 500, 300))
	assert.Equal(t, Grandmaster, TierForRating(2192, 100, 500))
	assert.Equal(t, "Master 1", TierForRating(2200, 500, 500))
	assert.Equal(t, "Master 3", TierForRating(2400, 101, 301))
	// Below the Master boundary a top placement does not promote.
	assert.Equal(t, "Diamond 3", TierForRating(2191, 1, 1))
}

func TestIconName(t *testing.T) {
	assert.Equal(t, "PLATINUM 2", IconName("Platinum 2"))
	assert.Equal(t, "MASTER 1", IconName("Master 1"))
	assert.Equal(t, "GRANDMASTER", IconName(Grandmaster))
	assert.Equal(t, "UNRANKED", IconName(Unranked))
	assert.Equal(t, "undefined", IconName("Unknown"))
	assert.Equal(t, "", IconName("Someone (Unranked Season)"))
}

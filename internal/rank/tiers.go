package rank

import (
	"math"
	"strings"
)

// Rank labels outside the rating bands.
const (
	Grandmaster = "Grandmaster"
	Unranked    = "Unranked"
)

// NoPlacement stands in for a missing daily leaderboard placement.
const NoPlacement = math.MaxInt32

// grandmasterRating is the first rating eligible for Grandmaster.
const grandmasterRating = 2192

type band struct {
	below int
	label string
}

// bands are half-open: a rating belongs to the first band whose bound it is
// below.
var bands = []band{
	{766, "Bronze 1"},
	{914, "Bronze 2"},
	{1055, "Bronze 3"},
	{1189, "Silver 1"},
	{1316, "Silver 2"},
	{1436, "Silver 3"},
	{1549, "Gold 1"},
	{1654, "Gold 2"},
	{1752, "Gold 3"},
	{1843, "Platinum 1"},
	{1928, "Platinum 2"},
	{2004, "Platinum 3"},
	{2074, "Diamond 1"},
	{2137, "Diamond 2"},
	{2192, "Diamond 3"},
	{2275, "Master 1"},
	{2350, "Master 2"},
}

// TierForRating maps a rating and the daily placements to a rank label.
// Pass NoPlacement for a placement the service did not report.
func TierForRating(rating, regionalPlacement, globalPlacement int) string {
	if rating >= grandmasterRating && (regionalPlacement <= 100 || globalPlacement <= 300) {
		return Grandmaster
	}
	for _, b := range bands {
		if rating < b.below {
			return b.label
		}
	}
	return "Master 3"
}

// IconName returns the rank icon asset name for a label, or "" when the
// label has no icon.
func IconName(label string) string {
	for _, tier := range []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond", "Master"} {
		if strings.HasPrefix(label, tier) {
			return strings.Replace(label, tier, strings.ToUpper(tier), 1)
		}
	}
	switch label {
	case Grandmaster:
		return "GRANDMASTER"
	case Unranked:
		return "UNRANKED"
	case "Unknown":
		return "undefined"
	}
	return ""
}

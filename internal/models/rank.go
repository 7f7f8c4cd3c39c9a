package models

type Rank string

const (
	RankBronze  Rank = "Bronze"
	RankSilver  Rank = "Silver"
	RankGold    Rank = "Gold"
	RankEmerald Rank = "Emerald"
	RankDiamond Rank = "Diamond"
)

// RankThreshold maps a rank to the minimum total points that earn it.
type RankThreshold struct {
	Rank      Rank `json:"rank"`
	MinPoints int  `json:"min_points"`
}

// RankThresholds is ordered ascending by MinPoints. RankForPoints keeps the
// last threshold met, so the order is load-bearing.
var RankThresholds = []RankThreshold{
	{Rank: RankBronze, MinPoints: 0},
	{Rank: RankSilver, MinPoints: 500},
	{Rank: RankGold, MinPoints: 1500},
	{Rank: RankEmerald, MinPoints: 3000},
	{Rank: RankDiamond, MinPoints: 5000},
}

// RankForPoints derives the rank tier from cumulative points. It is a pure
// step function: negative input clamps to Bronze.
func RankForPoints(points int) Rank {
	rank := RankBronze
	for _, t := range RankThresholds {
		if points >= t.MinPoints {
			rank = t.Rank
		}
	}
	return rank
}

// NextRankThreshold returns the next tier above the given points and how
// many points remain to reach it. ok is false at the top tier.
func NextRankThreshold(points int) (next Rank, remaining int, ok bool) {
	for _, t := range RankThresholds {
		if points < t.MinPoints {
			return t.Rank, t.MinPoints - points, true
		}
	}
	return "", 0, false
}

func (r Rank) IsValid() bool {
	switch r {
	case RankBronze, RankSilver, RankGold, RankEmerald, RankDiamond:
		return true
	}
	return false
}

package rank

import (
	"fmt"
	"sort"
)

// Tier is one rank level. Thresholds are cumulative-point floors; a user
// holds the highest tier whose MinPoints they have reached.
type Tier struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
	Color     string `json:"color"`
}

// Table is an immutable, ordered set of tiers. It is loaded once at
// startup and passed into the services that need it; nothing mutates it.
type Table struct {
	tiers []Tier
}

// Progress describes how far a point total is from the next tier.
type Progress struct {
	IsMaxRank  bool  `json:"is_max_rank"`
	Percentage int   `json:"progress_percentage"`
	PointsLeft int64 `json:"points_needed"`
	Next       *Tier `json:"next_rank,omitempty"`
}

// NewTable validates and builds a rank table. Thresholds must be strictly
// increasing and the first tier must start at zero so every total has a rank.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("rank table must not be empty")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	if sorted[0].MinPoints != 0 {
		return nil, fmt.Errorf("lowest tier must start at 0 points, got %d", sorted[0].MinPoints)
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].MinPoints == sorted[i-1].MinPoints {
			return nil, fmt.Errorf("duplicate tier threshold %d", sorted[i].MinPoints)
		}
	}

	for i := range sorted {
		sorted[i].Level = i + 1
	}

	return &Table{tiers: sorted}, nil
}

// Default returns the built-in seven tier table.
func Default() *Table {
	t, err := NewTable([]Tier{
		{Name: "Newcomer", MinPoints: 0, Color: "#9E9E9E"},
		{Name: "Contributor", MinPoints: 100, Color: "#8BC34A"},
		{Name: "Active Member", MinPoints: 500, Color: "#03A9F4"},
		{Name: "Valued Member", MinPoints: 1000, Color: "#3F51B5"},
		{Name: "Expert", MinPoints: 2500, Color: "#9C27B0"},
		{Name: "Veteran", MinPoints: 5000, Color: "#FF9800"},
		{Name: "Legend", MinPoints: 10000, Color: "#F44336"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Rank returns the highest tier whose floor the total has reached.
func (t *Table) Rank(totalPoints int64) Tier {
	current := t.tiers[0]
	for _, tier := range t.tiers {
		if totalPoints >= tier.MinPoints {
			current = tier
			continue
		}
		break
	}
	return current
}

// Next returns the tier above the one held at totalPoints, or false at the top.
func (t *Table) Next(totalPoints int64) (Tier, bool) {
	current := t.Rank(totalPoints)
	if current.Level >= len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[current.Level], true
}

// NextProgress reports percentage progress from the current tier's floor to
// the next tier's floor, clamped to [0,100].
func (t *Table) NextProgress(totalPoints int64) Progress {
	current := t.Rank(totalPoints)

	next, ok := t.Next(totalPoints)
	if !ok {
		return Progress{IsMaxRank: true, Percentage: 100}
	}

	span := next.MinPoints - current.MinPoints
	gained := totalPoints - current.MinPoints

	pct := int(gained * 100 / span)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return Progress{
		Percentage: pct,
		PointsLeft: next.MinPoints - totalPoints,
		Next:       &next,
	}
}

// Tiers returns a copy of the ordered tier list.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

package rank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTableRejectsEmpty(t *testing.T) {
	_, err := NewTable(nil)
	require.Error(t, err)
}

func TestNewTableRejectsMissingFloor(t *testing.T) {
	_, err := NewTable([]Tier{
		{Name: "Bronze", MinPoints: 50},
		{Name: "Silver", MinPoints: 200},
	})
	require.Error(t, err)
}

func TestNewTableRejectsDuplicateThreshold(t *testing.T) {
	_, err := NewTable([]Tier{
		{Name: "Bronze", MinPoints: 0},
		{Name: "Silver", MinPoints: 100},
		{Name: "Gold", MinPoints: 100},
	})
	require.Error(t, err)
}

func TestNewTableSortsAndAssignsLevels(t *testing.T) {
	table, err := NewTable([]Tier{
		{Name: "Gold", MinPoints: 500},
		{Name: "Bronze", MinPoints: 0},
		{Name: "Silver", MinPoints: 100},
	})
	require.NoError(t, err)

	tiers := table.Tiers()
	require.Len(t, tiers, 3)
	require.Equal(t, "Bronze", tiers[0].Name)
	require.Equal(t, 1, tiers[0].Level)
	require.Equal(t, "Gold", tiers[2].Name)
	require.Equal(t, 3, tiers[2].Level)
}

func TestDefaultTable(t *testing.T) {
	table := Default()

	tiers := table.Tiers()
	require.Len(t, tiers, 7)
	require.Equal(t, "Newcomer", tiers[0].Name)
	require.Equal(t, int64(0), tiers[0].MinPoints)
	require.Equal(t, "Legend", tiers[6].Name)
	require.Equal(t, int64(10000), tiers[6].MinPoints)
}

func TestRankBoundaries(t *testing.T) {
	table := Default()

	cases := []struct {
		points int64
		want   string
	}{
		{0, "Newcomer"},
		{99, "Newcomer"},
		{100, "Contributor"},
		{104, "Contributor"},
		{499, "Contributor"},
		{500, "Active Member"},
		{2500, "Expert"},
		{9999, "Veteran"},
		{10000, "Legend"},
		{250000, "Legend"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, table.Rank(tc.points).Name, "points=%d", tc.points)
	}
}

func TestNext(t *testing.T) {
	table := Default()

	next, ok := table.Next(0)
	require.True(t, ok)
	require.Equal(t, "Contributor", next.Name)

	_, ok = table.Next(10000)
	require.False(t, ok)
}

func TestNextProgress(t *testing.T) {
	table := Default()

	p := table.NextProgress(50)
	require.False(t, p.IsMaxRank)
	require.Equal(t, 50, p.Percentage)
	require.Equal(t, int64(50), p.PointsLeft)
	require.NotNil(t, p.Next)
	require.Equal(t, "Contributor", p.Next.Name)

	p = table.NextProgress(100)
	require.Equal(t, 0, p.Percentage)
	require.Equal(t, int64(400), p.PointsLeft)

	p = table.NextProgress(10000)
	require.True(t, p.IsMaxRank)
	require.Equal(t, 100, p.Percentage)
	require.Nil(t, p.Next)
}

func TestTiersReturnsCopy(t *testing.T) {
	table := Default()

	tiers := table.Tiers()
	tiers[0].Name = "mutated"

	require.Equal(t, "Newcomer", table.Rank(0).Name)
}

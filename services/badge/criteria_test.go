package badge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reputation-engine/services/reputation"
)

type sourceStub struct {
	postsToday int64
	votesSince int64
	err        error
}

func (s *sourceStub) CountPostsToday(_ context.Context, _ string) (int64, error) {
	return s.postsToday, s.err
}

func (s *sourceStub) CountVotesSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return s.votesSince, s.err
}

func TestCompileCriterionUnknownField(t *testing.T) {
	_, err := compileCriterion(Criterion{Field: "karma_velocity", Threshold: 1})
	require.Error(t, err)
}

func TestCompileCriteriaStopsAtFirstUnknown(t *testing.T) {
	_, err := compileCriteria([]Criterion{
		{Field: fieldPostsCount, Threshold: 10},
		{Field: "bogus", Threshold: 1},
	})
	require.Error(t, err)
}

func TestFieldAtLeast(t *testing.T) {
	account := &reputation.Account{PostsCount: 10}

	p, err := compileCriterion(Criterion{Field: fieldPostsCount, Threshold: 10})
	require.NoError(t, err)

	ok, err := p.eval(context.Background(), account, nil)
	require.NoError(t, err)
	require.True(t, ok)

	account.PostsCount = 9
	ok, err = p.eval(context.Background(), account, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFirstPostIsExact(t *testing.T) {
	p, err := compileCriterion(Criterion{Field: fieldFirstPost, Threshold: 1})
	require.NoError(t, err)

	ok, err := p.eval(context.Background(), &reputation.Account{PostsCount: 1}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// the first-post badge belongs to the first post, not every later one
	ok, err = p.eval(context.Background(), &reputation.Account{PostsCount: 2}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWindowedCount(t *testing.T) {
	account := &reputation.Account{UserID: "user-1"}

	p, err := compileCriterion(Criterion{Field: fieldPostsInDay, Threshold: 5})
	require.NoError(t, err)

	ok, err := p.eval(context.Background(), account, &sourceStub{postsToday: 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.eval(context.Background(), account, &sourceStub{postsToday: 4})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWindowedCountSourceErrors(t *testing.T) {
	account := &reputation.Account{UserID: "user-1"}

	p, err := compileCriterion(Criterion{Field: fieldVotesInWeek, Threshold: 3})
	require.NoError(t, err)

	_, err = p.eval(context.Background(), account, &sourceStub{err: errors.New("collaborator down")})
	require.Error(t, err)

	_, err = p.eval(context.Background(), account, nil)
	require.Error(t, err)
}

func TestAccountFieldCoverage(t *testing.T) {
	account := &reputation.Account{
		TotalPoints:           120,
		PostsCount:            7,
		ThreadsCount:          3,
		VotesReceived:         40,
		SolutionsProvided:     5,
		ConsecutiveDaysActive: 14,
		RankLevel:             2,
	}

	cases := map[string]int64{
		fieldTotalPoints:     120,
		fieldPostsCount:      7,
		fieldThreadsCount:    3,
		fieldVotesReceived:   40,
		fieldSolutions:       5,
		fieldConsecutiveDays: 14,
		fieldRankLevel:       2,
	}

	for field, want := range cases {
		got, err := accountField(account, field)
		require.NoError(t, err, field)
		require.Equal(t, want, got, field)
	}

	_, err := accountField(account, "unknown")
	require.Error(t, err)
}

func TestEvaluatorExpression(t *testing.T) {
	e := NewEvaluator()
	account := &reputation.Account{RankLevel: 5, SolutionsProvided: 30}

	ok, err := e.Evaluate("rank_level >= 5 && solutions_provided >= 25", evaluationContext(account))
	require.NoError(t, err)
	require.True(t, ok)

	account.RankLevel = 4
	ok, err = e.Evaluate("rank_level >= 5 && solutions_provided >= 25", evaluationContext(account))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluatorRejectsNonBoolean(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate("total_points + 1", evaluationContext(&reputation.Account{}))
	require.Error(t, err)
}

func TestEvaluatorRejectsEmptyExpression(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate("", nil)
	require.Error(t, err)
}

func TestRarityInfoFallsBackToCommon(t *testing.T) {
	require.Equal(t, "Epic", RarityEpic.Info().Name)
	require.Equal(t, "Common", Rarity("mythic").Info().Name)
}

package badge

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"reputation-engine/services/rank"
	"reputation-engine/services/reputation"
	"reputation-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newBadgeEnv(t *testing.T) (*Service, *reputation.Service) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&reputation.Account{}, &reputation.Event{},
		&Definition{}, &Award{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledger := reputation.NewService(reputation.ServiceParams{
		DB:    db,
		Node:  node,
		Table: rank.Default(),
		Points: reputation.PointTable{
			reputation.PostCreated:     5,
			reputation.ThreadCreated:   10,
			reputation.VoteReceived:    2,
			reputation.SolutionMarked:  25,
			reputation.DailyActivity:   1,
			reputation.ConsecutiveDays: 15,
			reputation.BadgeEarned:     0,
		},
	})

	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledger})

	return svc, ledger
}

func (s *Service) mustCreateDefinition(t *testing.T, def *Definition) *Definition {
	t.Helper()

	if def.ID == "" {
		def.ID = s.node.Generate().String()
	}
	require.NoError(t, s.definitions.Create(context.Background(), def))
	return def
}

func TestAwardToUserGrantsOnce(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	def := svc.mustCreateDefinition(t, &Definition{
		Slug:        "contributor",
		Name:        "Contributor",
		Type:        TypeActivity,
		Rarity:      RarityUncommon,
		PointsValue: 25,
		Criteria:    MustCriteria(Criterion{Field: "posts_count", Threshold: 10}),
		IsActive:    true,
	})

	award, already, err := svc.AwardToUser(ctx, "user-1", def, map[string]any{"posts_count": 10})
	require.NoError(t, err)
	require.False(t, already)
	require.NotNil(t, award)
	require.NotEmpty(t, award.EarningContext)

	account, err := ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(25), account.TotalPoints)
	require.Equal(t, int64(25), account.BadgePoints)

	stored, err := svc.definitions.FindOne(ctx, &Definition{Slug: "contributor"})
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.AwardedCount)

	// the second grant is a no-op: no new award, no new points
	again, already, err := svc.AwardToUser(ctx, "user-1", def, nil)
	require.NoError(t, err)
	require.True(t, already)
	require.Equal(t, award.ID, again.ID)

	account, err = ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(25), account.TotalPoints)

	stored, err = svc.definitions.FindOne(ctx, &Definition{Slug: "contributor"})
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.AwardedCount)

	ok, err := ledger.VerifyLedger(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAwardToUserZeroPointBadge(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	def := svc.mustCreateDefinition(t, &Definition{
		Slug:     "first-post",
		Name:     "First Words",
		Type:     TypeActivity,
		Rarity:   RarityCommon,
		Criteria: MustCriteria(Criterion{Field: "first_post", Threshold: 1}),
		IsActive: true,
	})

	_, already, err := svc.AwardToUser(ctx, "user-1", def, nil)
	require.NoError(t, err)
	require.False(t, already)

	// no point reward means no reputation account either
	account, err := ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, account)
}

func TestAwardToUserUniqueViolationWithoutAwardIsNotHeld(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	def := svc.mustCreateDefinition(t, &Definition{
		Slug:     "elusive",
		Name:     "Elusive",
		Type:     TypeMilestone,
		Rarity:   RarityCommon,
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 0}),
		IsActive: true,
	})

	// every insert trips a unique constraint on another table, so the
	// refetch never finds an award row
	require.NoError(t, svc.db.Callback().Create().Before("gorm:create").
		Register("test_fail_award_insert", func(tx *gorm.DB) {
			if tx.Statement.Table == "badge_awards" {
				tx.AddError(errors.New(`duplicate key value violates unique constraint "reputation_accounts_pkey"`))
			}
		}))
	t.Cleanup(func() {
		require.NoError(t, svc.db.Callback().Create().Remove("test_fail_award_insert"))
	})

	award, already, err := svc.AwardToUser(ctx, "user-1", def, nil)
	require.Error(t, err)
	require.False(t, already)
	require.Nil(t, award)

	total, countErr := svc.awards.Count(ctx, &Award{})
	require.NoError(t, countErr)
	require.Zero(t, total)
}

func TestAwardToUserRetriesTransientConflict(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	def := svc.mustCreateDefinition(t, &Definition{
		Slug:        "persistent",
		Name:        "Persistent",
		Type:        TypeMilestone,
		Rarity:      RarityCommon,
		PointsValue: 25,
		Criteria:    MustCriteria(Criterion{Field: "total_points", Threshold: 0}),
		IsActive:    true,
	})

	failures := 2
	require.NoError(t, svc.db.Callback().Create().Before("gorm:create").
		Register("test_flaky_award_insert", func(tx *gorm.DB) {
			if tx.Statement.Table == "badge_awards" && failures > 0 {
				failures--
				tx.AddError(errors.New("pq: could not serialize access due to concurrent update"))
			}
		}))
	t.Cleanup(func() {
		require.NoError(t, svc.db.Callback().Create().Remove("test_flaky_award_insert"))
	})

	award, already, err := svc.AwardToUser(ctx, "user-1", def, nil)
	require.NoError(t, err)
	require.False(t, already)
	require.NotNil(t, award)
	require.Zero(t, failures)

	total, err := svc.awards.Count(ctx, &Award{UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	account, err := ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(25), account.TotalPoints)
}

func TestCheckCriteriaFailsClosed(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()
	account := &reputation.Account{UserID: "user-1", PostsCount: 100}

	inactive := &Definition{
		Slug:     "retired",
		Criteria: MustCriteria(Criterion{Field: "posts_count", Threshold: 1}),
		IsActive: false,
	}
	require.False(t, svc.CheckCriteria(ctx, account, inactive))

	malformed := &Definition{Slug: "broken", Criteria: []byte("{not json"), IsActive: true}
	require.False(t, svc.CheckCriteria(ctx, account, malformed))

	unknown := &Definition{
		Slug:     "mystery",
		Criteria: MustCriteria(Criterion{Field: "karma_velocity", Threshold: 1}),
		IsActive: true,
	}
	require.False(t, svc.CheckCriteria(ctx, account, unknown))

	empty := &Definition{Slug: "vacuous", IsActive: true}
	require.False(t, svc.CheckCriteria(ctx, account, empty))
}

func TestCheckCriteriaAllMustHold(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	def := &Definition{
		Slug: "well-rounded",
		Criteria: MustCriteria(
			Criterion{Field: "posts_count", Threshold: 10},
			Criterion{Field: "solutions_provided", Threshold: 5},
		),
		IsActive: true,
	}

	require.True(t, svc.CheckCriteria(ctx, &reputation.Account{PostsCount: 10, SolutionsProvided: 5}, def))
	require.False(t, svc.CheckCriteria(ctx, &reputation.Account{PostsCount: 10, SolutionsProvided: 4}, def))
}

func TestCheckCriteriaExpression(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	def := &Definition{
		Slug:       "pillar-of-community",
		Expression: "rank_level >= 5 && solutions_provided >= 25",
		IsActive:   true,
	}

	require.True(t, svc.CheckCriteria(ctx, &reputation.Account{RankLevel: 5, SolutionsProvided: 25}, def))
	require.False(t, svc.CheckCriteria(ctx, &reputation.Account{RankLevel: 5, SolutionsProvided: 24}, def))

	invalid := &Definition{Slug: "gibberish", Expression: "rank_level >>> 5", IsActive: true}
	require.False(t, svc.CheckCriteria(ctx, &reputation.Account{RankLevel: 7}, invalid))
}

func TestCheckAndAwardBadgesNoAccount(t *testing.T) {
	svc, _ := newBadgeEnv(t)

	granted, err := svc.CheckAndAwardBadges(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, granted)
}

func TestCheckAndAwardBadgesRejectsBlankUser(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	// a real account exists; the blank lookup must not resolve to it
	_, err := ledger.AwardPoints(ctx, "user-1", reputation.PostCreated)
	require.NoError(t, err)

	svc.mustCreateDefinition(t, &Definition{
		Slug:     "first-point",
		Name:     "First Point",
		Type:     TypeMilestone,
		Rarity:   RarityCommon,
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 1}),
		IsActive: true,
	})

	granted, err := svc.CheckAndAwardBadges(ctx, "")
	require.Error(t, err)
	require.Empty(t, granted)

	total, err := svc.awards.Count(ctx, &Award{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestAwardToUserRejectsBlankUser(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	def := svc.mustCreateDefinition(t, &Definition{
		Slug:     "any",
		Name:     "Any",
		Type:     TypeMilestone,
		Rarity:   RarityCommon,
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 0}),
		IsActive: true,
	})

	_, _, err := svc.AwardToUser(ctx, "  ", def, nil)
	require.Error(t, err)
}

func TestCheckAndAwardBadgesFromSeededCatalog(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))

	for i := 0; i < 10; i++ {
		_, err := ledger.AwardPoints(ctx, "user-1", reputation.PostCreated)
		require.NoError(t, err)
	}

	account, err := ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(50), account.TotalPoints)
	require.Equal(t, int64(10), account.PostsCount)

	granted, err := svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, granted, 1)
	require.Equal(t, "contributor", granted[0].Badge.Slug)

	account, err = ledger.Account(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(75), account.TotalPoints)
	require.Equal(t, "Newcomer", account.RankName)

	// re-running without new activity awards nothing
	granted, err = svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, granted)

	ok, err := ledger.VerifyLedger(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAndAwardBadgesSeesRewardCascade(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	svc.mustCreateDefinition(t, &Definition{
		Slug:        "springboard",
		Name:        "Springboard",
		PointsValue: 100,
		Criteria:    MustCriteria(Criterion{Field: "total_points", Threshold: 10}),
		IsActive:    true,
	})
	svc.mustCreateDefinition(t, &Definition{
		Slug:     "half-century",
		Name:     "Half Century",
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 50}),
		IsActive: true,
	})

	_, err := ledger.AwardPoints(ctx, "user-1", reputation.ThreadCreated)
	require.NoError(t, err)

	_, err = svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	_, err = svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)

	awards, err := svc.UserAwards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 2)

	granted, err := svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, granted)
}

func TestCatalogCacheInvalidation(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	svc.mustCreateDefinition(t, &Definition{
		Slug:     "early-bird",
		Name:     "Early Bird",
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 1}),
		IsActive: true,
	})

	_, err := ledger.AwardPoints(ctx, "user-1", reputation.PostCreated)
	require.NoError(t, err)

	granted, err := svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, granted, 1)

	// a definition added behind the cached catalog is invisible until invalidation
	svc.mustCreateDefinition(t, &Definition{
		Slug:     "late-arrival",
		Name:     "Late Arrival",
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 1}),
		IsActive: true,
	})

	granted, err = svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, granted)

	svc.InvalidateCatalog()

	granted, err = svc.CheckAndAwardBadges(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, granted, 1)
	require.Equal(t, "late-arrival", granted[0].Badge.Slug)
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	defs, err := svc.Definitions(ctx, true)
	require.NoError(t, err)
	require.Len(t, defs, len(DefaultDefinitions()))
}

func TestDefinitionsFiltersInactive(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	svc.mustCreateDefinition(t, &Definition{Slug: "live", Name: "Live", IsActive: true})
	svc.mustCreateDefinition(t, &Definition{Slug: "retired", Name: "Retired", IsActive: false})

	active, err := svc.Definitions(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "live", active[0].Slug)

	all, err := svc.Definitions(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUserAwardsNewestFirst(t *testing.T) {
	svc, _ := newBadgeEnv(t)
	ctx := context.Background()

	first := svc.mustCreateDefinition(t, &Definition{
		Slug:     "first",
		Name:     "First",
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 0}),
		IsActive: true,
	})
	second := svc.mustCreateDefinition(t, &Definition{
		Slug:     "second",
		Name:     "Second",
		Criteria: MustCriteria(Criterion{Field: "total_points", Threshold: 0}),
		IsActive: true,
	})

	_, _, err := svc.AwardToUser(ctx, "user-1", first, nil)
	require.NoError(t, err)
	_, _, err = svc.AwardToUser(ctx, "user-1", second, nil)
	require.NoError(t, err)

	awards, err := svc.UserAwards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 2)
	require.NotNil(t, awards[0].Badge)
	require.False(t, awards[0].EarnedAt.Before(awards[1].EarnedAt))
}

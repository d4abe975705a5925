package badge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"reputation-engine/services/reputation"
)

func TestHandleCheckBadgesGrants(t *testing.T) {
	svc, ledger := newBadgeEnv(t)
	ctx := context.Background()

	svc.mustCreateDefinition(t, &Definition{
		Slug:     "first-post",
		Name:     "First Words",
		Criteria: MustCriteria(Criterion{Field: "first_post", Threshold: 1}),
		IsActive: true,
	})

	_, err := ledger.AwardPoints(ctx, "user-1", reputation.PostCreated)
	require.NoError(t, err)

	payload, err := json.Marshal(reputation.CheckBadgesPayload{UserID: "user-1"})
	require.NoError(t, err)

	task := NewTask(TaskParams{Badges: svc})
	err = task.HandleCheckBadges(ctx, asynq.NewTask(reputation.TaskCheckBadges, payload))
	require.NoError(t, err)

	awards, err := svc.UserAwards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 1)
	require.Equal(t, "first-post", awards[0].Badge.Slug)
}

func TestHandleCheckBadgesRejectsMalformedPayload(t *testing.T) {
	svc, _ := newBadgeEnv(t)

	task := NewTask(TaskParams{Badges: svc})
	err := task.HandleCheckBadges(context.Background(), asynq.NewTask(reputation.TaskCheckBadges, []byte("{broken")))
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: badge_awards.user_id, badge_awards.badge_id")))
	require.True(t, isUniqueViolation(errors.New(`duplicate key value violates unique constraint "idx_badge_awards_user_badge"`)))
	require.False(t, isUniqueViolation(errors.New("connection reset by peer")))
}

package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reputation-engine/pkg/db/option"
	"reputation-engine/pkg/errutil"
	"reputation-engine/pkg/repository"
	"reputation-engine/services/rank"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAwardAttempts = 3

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	table  *rank.Table
	points PointTable

	accounts repository.Repository[Account]
	events   repository.Repository[Event]

	rdb   *redis.Client
	tasks *asynq.Client
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Table  *rank.Table
	Points PointTable
	Redis  *redis.Client `optional:"true"`
	Tasks  *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		table:  p.Table,
		points: p.Points,

		accounts: repository.ProvideStore[Account](p.DB),
		events:   repository.ProvideStore[Event](p.DB),

		rdb:   p.Redis,
		tasks: p.Tasks,
	}
}

// AwardOption refines a single AwardPoints call.
type AwardOption func(*award)

type award struct {
	points      *int64
	sourceType  string
	sourceID    string
	description string
	metadata    map[string]any
	skipStreak  bool
}

// WithPoints overrides the point-table value. Badge awards use this to apply
// the badge's own point reward.
func WithPoints(points int64) AwardOption {
	return func(a *award) { a.points = &points }
}

// WithSource references the content that triggered the award (a post, a badge).
func WithSource(sourceType, sourceID string) AwardOption {
	return func(a *award) {
		a.sourceType = sourceType
		a.sourceID = sourceID
	}
}

func WithDescription(description string) AwardOption {
	return func(a *award) { a.description = description }
}

func WithMetadata(metadata map[string]any) AwardOption {
	return func(a *award) { a.metadata = metadata }
}

// AwardPoints records one point-earning action for a user. The account
// mutation and the history append commit as one transaction; conflicting
// concurrent awards to the same user are retried transparently.
func (s *Service) AwardPoints(ctx context.Context, userID string, action ActionType, opts ...AwardOption) (*Account, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("action", string(action)),
	)

	if strings.TrimSpace(userID) == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	var aw award
	for _, opt := range opts {
		opt(&aw)
	}

	points, err := s.resolvePoints(action, aw.points)
	if err != nil {
		zapLog.Warn("rejected award", zap.Error(err))
		return nil, err
	}

	var account *Account
	err = s.withRetry(zapLog, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			account, txErr = s.apply(ctx, tx, userID, action, points, aw)
			return txErr
		})
	})
	if err != nil {
		zapLog.Error("failed to award points", zap.Error(err))
		return nil, err
	}

	s.invalidateLeaderboard(ctx)
	s.enqueueBadgeCheck(ctx, zapLog, userID)

	return account, nil
}

// AwardPointsTx applies an award inside a transaction the caller already
// owns. The badge awarder uses it so a badge grant and its point reward
// commit or roll back together; retries stay the caller's responsibility.
func (s *Service) AwardPointsTx(ctx context.Context, tx *gorm.DB, userID string, action ActionType, opts ...AwardOption) (*Account, error) {
	var aw award
	for _, opt := range opts {
		opt(&aw)
	}

	points, err := s.resolvePoints(action, aw.points)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, tx, userID, action, points, aw)
}

// apply is the internal award primitive. Both the public entry point and the
// streak bonus recursion go through it; the recursion sets skipStreak so a
// single external action never touches the streak twice.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, userID string, action ActionType, points int64, aw award) (*Account, error) {
	tx = tx.Scopes(option.LockingUpdate)
	accounts := s.accounts.WithTrx(tx)
	events := s.events.WithTrx(tx)

	account, err := accounts.FindOne(ctx, &Account{UserID: userID})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	created := false
	if account == nil {
		floor := s.table.Rank(0)
		account = &Account{
			ID:        s.node.Generate().String(),
			CreatedAt: now,
			UserID:    userID,
			RankLevel: floor.Level,
			RankName:  floor.Name,
		}
		created = true
	}

	before := account.TotalPoints
	account.TotalPoints += points
	applySubtotal(account, action, points)
	applyCounter(account, action)

	bonusDue := false
	if !aw.skipStreak {
		today := dateOnly(now)
		days, due := advanceStreak(account.LastActivityDate, account.ConsecutiveDaysActive, today)
		account.ConsecutiveDaysActive = days
		account.LastActivityDate = &today
		bonusDue = due
	}

	tier := s.table.Rank(account.TotalPoints)
	account.RankLevel = tier.Level
	account.RankName = tier.Name
	account.UpdatedAt = now

	if created {
		if err := accounts.Create(ctx, account); err != nil {
			return nil, err
		}
	} else {
		if err := accounts.Update(ctx, account.ID, map[string]any{
			"total_points":            account.TotalPoints,
			"post_points":             account.PostPoints,
			"vote_points":             account.VotePoints,
			"solution_points":         account.SolutionPoints,
			"badge_points":            account.BadgePoints,
			"rank_level":              account.RankLevel,
			"rank_name":               account.RankName,
			"posts_count":             account.PostsCount,
			"threads_count":           account.ThreadsCount,
			"votes_received":          account.VotesReceived,
			"solutions_provided":      account.SolutionsProvided,
			"consecutive_days_active": account.ConsecutiveDaysActive,
			"last_activity_date":      account.LastActivityDate,
			"updated_at":              account.UpdatedAt,
		}); err != nil {
			return nil, err
		}
	}

	var meta datatypes.JSON
	if aw.metadata != nil {
		raw, err := json.Marshal(aw.metadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid award metadata", err)
		}
		meta = datatypes.JSON(raw)
	}

	if err := events.Create(ctx, &Event{
		ID:           s.node.Generate().String(),
		CreatedAt:    now,
		UserID:       userID,
		Action:       action,
		PointsChange: points,
		PointsBefore: before,
		PointsAfter:  account.TotalPoints,
		SourceType:   aw.sourceType,
		SourceID:     aw.sourceID,
		Description:  aw.description,
		Metadata:     meta,
	}); err != nil {
		return nil, err
	}

	if bonusDue {
		bonus := s.points[ConsecutiveDays]
		if bonus > 0 {
			updated, err := s.apply(ctx, tx, userID, ConsecutiveDays, bonus, award{
				skipStreak:  true,
				description: fmt.Sprintf("%d day activity streak bonus", account.ConsecutiveDaysActive),
			})
			if err != nil {
				return nil, err
			}
			account = updated
		}
	}

	return account, nil
}

func (s *Service) resolvePoints(action ActionType, override *int64) (int64, error) {
	if override != nil {
		if *override < 0 {
			return 0, errutil.BadRequest("point override must not be negative", nil)
		}
		return *override, nil
	}

	if action.String() == "" {
		return 0, errutil.BadRequest(fmt.Sprintf("unrecognized action %q", string(action)), nil)
	}

	points, ok := s.points[action]
	if !ok {
		return 0, errutil.BadRequest(fmt.Sprintf("no point value configured for action %q", string(action)), nil)
	}

	return points, nil
}

func (s *Service) withRetry(zapLog *zap.Logger, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAwardAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryableConflict(err) {
			return err
		}
		zapLog.Warn("retrying conflicting award", zap.Int("attempt", attempt), zap.Error(err))
	}
	return errutil.Internal("award not committed after retries", err)
}

// IsRetryableConflict reports whether a transaction failed on a conflict the
// engine can resolve by replaying: lock/serialization failures, or the
// lazy-create race where two first awards insert the same account. The badge
// awarder uses it for the same bounded-retry treatment of its grant tx.
func IsRetryableConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"could not serialize",
		"database is locked",
		"duplicate key",
		"unique constraint",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func applySubtotal(account *Account, action ActionType, points int64) {
	switch action {
	case PostCreated, ThreadCreated:
		account.PostPoints += points
	case VoteReceived:
		account.VotePoints += points
	case SolutionMarked:
		account.SolutionPoints += points
	case BadgeEarned:
		account.BadgePoints += points
	}
	// daily_activity and consecutive_days feed the total only
}

func applyCounter(account *Account, action ActionType) {
	switch action {
	case PostCreated:
		account.PostsCount++
	case ThreadCreated:
		account.ThreadsCount++
	case VoteReceived:
		account.VotesReceived++
	case SolutionMarked:
		account.SolutionsProvided++
	}
}

// Account returns the aggregate for a user, or nil when no activity exists
// yet. A blank userID is rejected rather than passed to the store, where the
// zero-value struct query would match an arbitrary row.
func (s *Service) Account(ctx context.Context, userID string) (*Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	return s.accounts.FindOne(ctx, &Account{UserID: userID})
}

// Statistics assembles the full standing snapshot for a user.
func (s *Service) Statistics(ctx context.Context, userID string) (*Statistics, error) {
	account, err := s.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errutil.NotFound("no reputation account for user", nil)
	}

	position, err := s.Position(ctx, userID)
	if err != nil {
		return nil, err
	}

	progress := s.table.NextProgress(account.TotalPoints)
	next := NextRank{
		IsMaxRank:  progress.IsMaxRank,
		Percentage: progress.Percentage,
		PointsLeft: progress.PointsLeft,
	}
	if progress.Next != nil {
		next.Name = progress.Next.Name
	}

	return &Statistics{
		UserID:              account.UserID,
		TotalPoints:         account.TotalPoints,
		RankLevel:           account.RankLevel,
		RankName:            account.RankName,
		NextRank:            next,
		LeaderboardPosition: position,
		Activity: ActivityStats{
			Posts:           account.PostsCount,
			Threads:         account.ThreadsCount,
			VotesReceived:   account.VotesReceived,
			Solutions:       account.SolutionsProvided,
			ConsecutiveDays: account.ConsecutiveDaysActive,
		},
		Breakdown: PointBreakdown{
			Posts:     account.PostPoints,
			Votes:     account.VotePoints,
			Solutions: account.SolutionPoints,
			Badges:    account.BadgePoints,
		},
	}, nil
}

// History returns the user's audit trail in append order.
func (s *Service) History(ctx context.Context, userID string) ([]*Event, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	return s.events.Find(ctx, &Event{UserID: userID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"created_at": true},
	}))
}

// VerifyLedger checks that the account aggregate has not drifted from the
// event history: per-event before/after continuity and the sum of changes
// matching the current total.
func (s *Service) VerifyLedger(ctx context.Context, userID string) (bool, error) {
	account, err := s.Account(ctx, userID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, errutil.NotFound("no reputation account for user", nil)
	}

	events, err := s.History(ctx, userID)
	if err != nil {
		return false, err
	}

	var sum int64
	var last int64
	for _, event := range events {
		if event.PointsBefore != last || event.PointsAfter != event.PointsBefore+event.PointsChange {
			return false, nil
		}
		sum += event.PointsChange
		last = event.PointsAfter
	}

	return sum == account.TotalPoints, nil
}

func (s *Service) enqueueBadgeCheck(ctx context.Context, zapLog *zap.Logger, userID string) {
	if s.tasks == nil {
		return
	}

	payload, err := json.Marshal(CheckBadgesPayload{UserID: userID})
	if err != nil {
		return
	}

	if _, err := s.tasks.EnqueueContext(ctx, asynq.NewTask(TaskCheckBadges, payload), asynq.Queue("default")); err != nil {
		zapLog.Warn("failed to enqueue badge check", zap.Error(err))
	}
}

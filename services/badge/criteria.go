package badge

import (
	"context"
	"fmt"
	"time"

	"reputation-engine/services/reputation"
)

// ActivitySource answers the windowed counts some criteria need. It is
// implemented by the forum content collaborator; the engine never reads
// forum content tables itself.
type ActivitySource interface {
	CountPostsToday(ctx context.Context, userID string) (int64, error)
	CountVotesSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// Criterion field keys understood by the interpreter. Anything else makes
// the whole badge fail closed.
const (
	fieldTotalPoints     = "total_points"
	fieldPostsCount      = "posts_count"
	fieldThreadsCount    = "threads_count"
	fieldVotesReceived   = "votes_received"
	fieldSolutions       = "solutions_provided"
	fieldConsecutiveDays = "consecutive_days_active"
	fieldRankLevel       = "rank_level"
	fieldFirstPost       = "first_post"
	fieldFirstThread     = "first_thread"
	fieldPostsInDay      = "forum_posts_in_day"
	fieldVotesInWeek     = "forum_votes_in_week"
)

const votesWindow = 7 * 24 * time.Hour

// predicate is one compiled badge condition.
type predicate interface {
	eval(ctx context.Context, account *reputation.Account, source ActivitySource) (bool, error)
}

type fieldAtLeast struct {
	field     string
	threshold int64
}

func (p fieldAtLeast) eval(_ context.Context, account *reputation.Account, _ ActivitySource) (bool, error) {
	value, err := accountField(account, p.field)
	if err != nil {
		return false, err
	}
	return value >= p.threshold, nil
}

type exactCount struct {
	field    string
	expected int64
}

func (p exactCount) eval(_ context.Context, account *reputation.Account, _ ActivitySource) (bool, error) {
	value, err := accountField(account, p.field)
	if err != nil {
		return false, err
	}
	return value == p.expected, nil
}

type windowedCount struct {
	query     string
	threshold int64
}

func (p windowedCount) eval(ctx context.Context, account *reputation.Account, source ActivitySource) (bool, error) {
	if source == nil {
		return false, fmt.Errorf("no activity source configured for %q", p.query)
	}

	var count int64
	var err error
	switch p.query {
	case fieldPostsInDay:
		count, err = source.CountPostsToday(ctx, account.UserID)
	case fieldVotesInWeek:
		count, err = source.CountVotesSince(ctx, account.UserID, time.Now().Add(-votesWindow))
	default:
		return false, fmt.Errorf("unknown windowed query %q", p.query)
	}
	if err != nil {
		return false, err
	}

	return count >= p.threshold, nil
}

// compileCriterion maps a stored {field, threshold} pair onto its predicate
// variant. Unknown keys are a configuration error, not a runtime one.
func compileCriterion(c Criterion) (predicate, error) {
	switch c.Field {
	case fieldTotalPoints, fieldPostsCount, fieldThreadsCount, fieldVotesReceived,
		fieldSolutions, fieldConsecutiveDays, fieldRankLevel:
		return fieldAtLeast{field: c.Field, threshold: c.Threshold}, nil
	case fieldFirstPost:
		return exactCount{field: fieldPostsCount, expected: 1}, nil
	case fieldFirstThread:
		return exactCount{field: fieldThreadsCount, expected: 1}, nil
	case fieldPostsInDay, fieldVotesInWeek:
		return windowedCount{query: c.Field, threshold: c.Threshold}, nil
	default:
		return nil, fmt.Errorf("unknown badge criterion %q", c.Field)
	}
}

func compileCriteria(criteria []Criterion) ([]predicate, error) {
	predicates := make([]predicate, 0, len(criteria))
	for _, c := range criteria {
		p, err := compileCriterion(c)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	return predicates, nil
}

func accountField(account *reputation.Account, field string) (int64, error) {
	switch field {
	case fieldTotalPoints:
		return account.TotalPoints, nil
	case fieldPostsCount:
		return account.PostsCount, nil
	case fieldThreadsCount:
		return account.ThreadsCount, nil
	case fieldVotesReceived:
		return account.VotesReceived, nil
	case fieldSolutions:
		return account.SolutionsProvided, nil
	case fieldConsecutiveDays:
		return int64(account.ConsecutiveDaysActive), nil
	case fieldRankLevel:
		return int64(account.RankLevel), nil
	default:
		return 0, fmt.Errorf("unknown account field %q", field)
	}
}

// evaluationContext exposes account fields as top-level CEL variables for
// special-badge expressions.
func evaluationContext(account *reputation.Account) map[string]any {
	return map[string]any{
		fieldTotalPoints:     account.TotalPoints,
		fieldPostsCount:      account.PostsCount,
		fieldThreadsCount:    account.ThreadsCount,
		fieldVotesReceived:   account.VotesReceived,
		fieldSolutions:       account.SolutionsProvided,
		fieldConsecutiveDays: account.ConsecutiveDaysActive,
		fieldRankLevel:       account.RankLevel,
		"badge_points":       account.BadgePoints,
	}
}

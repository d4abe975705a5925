package reputation

import (
	"time"

	"reputation-engine/pkg/config"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionType identifies a point-earning forum action.
type ActionType string

const (
	PostCreated     ActionType = "post_created"
	ThreadCreated   ActionType = "thread_created"
	VoteReceived    ActionType = "vote_received"
	SolutionMarked  ActionType = "solution_marked"
	DailyActivity   ActionType = "daily_activity"
	ConsecutiveDays ActionType = "consecutive_days"
	BadgeEarned     ActionType = "badge_earned"
)

func (a ActionType) String() string {
	switch a {
	case PostCreated, ThreadCreated, VoteReceived, SolutionMarked,
		DailyActivity, ConsecutiveDays, BadgeEarned:
		return string(a)
	default:
		return ""
	}
}

// PointTable maps actions to their default point values. Badge awards always
// override the table with the badge's own value.
type PointTable map[ActionType]int64

// PointTableFromConfig builds the point-value table from configuration.
func PointTableFromConfig(cfg *config.Config) PointTable {
	return PointTable{
		PostCreated:     cfg.Points.PostCreated,
		ThreadCreated:   cfg.Points.ThreadCreated,
		VoteReceived:    cfg.Points.VoteReceived,
		SolutionMarked:  cfg.Points.SolutionMarked,
		DailyActivity:   cfg.Points.DailyActivity,
		ConsecutiveDays: cfg.Points.ConsecutiveDays,
		BadgeEarned:     0,
	}
}

// Account is the per-user reputation aggregate. It is a materialized view of
// the event history: total_points must always equal the sum of the category
// subtotals and the sum of points_change over the user's events.
type Account struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	UserID string `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`

	TotalPoints    int64 `gorm:"column:total_points;not null;default:0" json:"total_points"`
	PostPoints     int64 `gorm:"column:post_points;not null;default:0" json:"post_points"`
	VotePoints     int64 `gorm:"column:vote_points;not null;default:0" json:"vote_points"`
	SolutionPoints int64 `gorm:"column:solution_points;not null;default:0" json:"solution_points"`
	BadgePoints    int64 `gorm:"column:badge_points;not null;default:0" json:"badge_points"`

	RankLevel int    `gorm:"column:rank_level;not null;default:1" json:"rank_level"`
	RankName  string `gorm:"column:rank_name" json:"rank_name"`

	PostsCount        int64 `gorm:"column:posts_count;not null;default:0" json:"posts_count"`
	ThreadsCount      int64 `gorm:"column:threads_count;not null;default:0" json:"threads_count"`
	VotesReceived     int64 `gorm:"column:votes_received;not null;default:0" json:"votes_received"`
	SolutionsProvided int64 `gorm:"column:solutions_provided;not null;default:0" json:"solutions_provided"`

	ConsecutiveDaysActive int        `gorm:"column:consecutive_days_active;not null;default:0" json:"consecutive_days_active"`
	LastActivityDate      *time.Time `gorm:"column:last_activity_date;type:date" json:"last_activity_date,omitempty"`
}

func (Account) TableName() string { return "reputation_accounts" }

// Event is one immutable entry in the reputation audit trail. Rows are only
// ever appended; points_after must equal points_before + points_change and
// match the account total at write time.
type Event struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	UserID       string         `gorm:"column:user_id;index;not null" json:"user_id"`
	Action       ActionType     `gorm:"column:action;type:varchar(30);not null" json:"action"`
	PointsChange int64          `gorm:"column:points_change;not null" json:"points_change"`
	PointsBefore int64          `gorm:"column:points_before;not null" json:"points_before"`
	PointsAfter  int64          `gorm:"column:points_after;not null" json:"points_after"`
	SourceType   string         `gorm:"column:source_type;type:varchar(30)" json:"source_type,omitempty"`
	SourceID     string         `gorm:"column:source_id;index" json:"source_id,omitempty"`
	Description  string         `gorm:"column:description;type:text" json:"description,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (Event) TableName() string { return "reputation_events" }

// Statistics is the standing snapshot returned to reporting surfaces.
type Statistics struct {
	UserID              string         `json:"user_id"`
	TotalPoints         int64          `json:"total_points"`
	RankLevel           int            `json:"rank_level"`
	RankName            string         `json:"rank_name"`
	NextRank            NextRank       `json:"next_rank"`
	LeaderboardPosition int64          `json:"leaderboard_position"`
	Activity            ActivityStats  `json:"activity_stats"`
	Breakdown           PointBreakdown `json:"point_breakdown"`
}

type NextRank struct {
	IsMaxRank  bool   `json:"is_max_rank"`
	Percentage int    `json:"progress_percentage"`
	PointsLeft int64  `json:"points_needed"`
	Name       string `json:"next_rank,omitempty"`
}

type ActivityStats struct {
	Posts           int64 `json:"posts_count"`
	Threads         int64 `json:"threads_count"`
	VotesReceived   int64 `json:"votes_received"`
	Solutions       int64 `json:"solutions_provided"`
	ConsecutiveDays int   `json:"consecutive_days_active"`
}

type PointBreakdown struct {
	Posts     int64 `json:"post_points"`
	Votes     int64 `json:"vote_points"`
	Solutions int64 `json:"solution_points"`
	Badges    int64 `json:"badge_points"`
}

// Migrate creates the reputation tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &Event{})
}

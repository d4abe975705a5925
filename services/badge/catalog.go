package badge

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultDefinitions is the seed badge catalog. Definitions are matched by
// slug, so re-running the seed never duplicates or re-prices a badge.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Slug:        "first-post",
			Name:        "First Words",
			Description: "Published a first forum post.",
			Type:        TypeActivity,
			Rarity:      RarityCommon,
			PointsValue: 5,
			Criteria:    MustCriteria(Criterion{Field: "first_post", Threshold: 1}),
			IsActive:    true,
		},
		{
			Slug:        "first-thread",
			Name:        "Conversation Starter",
			Description: "Opened a first discussion thread.",
			Type:        TypeActivity,
			Rarity:      RarityCommon,
			PointsValue: 10,
			Criteria:    MustCriteria(Criterion{Field: "first_thread", Threshold: 1}),
			IsActive:    true,
		},
		{
			Slug:        "contributor",
			Name:        "Contributor",
			Description: "Wrote ten forum posts.",
			Type:        TypeActivity,
			Rarity:      RarityUncommon,
			PointsValue: 25,
			Criteria:    MustCriteria(Criterion{Field: "posts_count", Threshold: 10}),
			IsActive:    true,
		},
		{
			Slug:        "prolific-author",
			Name:        "Prolific Author",
			Description: "Wrote one hundred forum posts.",
			Type:        TypeMilestone,
			Rarity:      RarityRare,
			PointsValue: 100,
			Criteria:    MustCriteria(Criterion{Field: "posts_count", Threshold: 100}),
			IsActive:    true,
		},
		{
			Slug:        "problem-solver",
			Name:        "Problem Solver",
			Description: "Provided five accepted solutions.",
			Type:        TypeAchievement,
			Rarity:      RarityRare,
			PointsValue: 75,
			Criteria:    MustCriteria(Criterion{Field: "solutions_provided", Threshold: 5}),
			IsActive:    true,
		},
		{
			Slug:        "crowd-favorite",
			Name:        "Crowd Favorite",
			Description: "Received fifty votes from other members.",
			Type:        TypeAchievement,
			Rarity:      RarityEpic,
			PointsValue: 150,
			Criteria:    MustCriteria(Criterion{Field: "votes_received", Threshold: 50}),
			IsActive:    true,
		},
		{
			Slug:        "dedicated",
			Name:        "Dedicated",
			Description: "Active thirty days in a row.",
			Type:        TypeMilestone,
			Rarity:      RarityEpic,
			PointsValue: 200,
			Criteria:    MustCriteria(Criterion{Field: "consecutive_days_active", Threshold: 30}),
			IsActive:    true,
		},
		{
			Slug:        "busy-day",
			Name:        "Busy Day",
			Description: "Wrote five posts in a single day.",
			Type:        TypeActivity,
			Rarity:      RarityUncommon,
			PointsValue: 20,
			Criteria:    MustCriteria(Criterion{Field: "forum_posts_in_day", Threshold: 5}),
			IsActive:    true,
		},
		{
			Slug:        "pillar-of-community",
			Name:        "Pillar of the Community",
			Description: "Reached Expert rank with a solution track record.",
			Type:        TypeSpecial,
			Rarity:      RarityLegendary,
			PointsValue: 500,
			Expression:  "rank_level >= 5 && solutions_provided >= 25",
			IsActive:    true,
		},
	}
}

// Seed inserts any default definitions missing from the catalog.
func (s *Service) Seed(ctx context.Context) error {
	for _, def := range DefaultDefinitions() {
		existing, err := s.definitions.FindOne(ctx, &Definition{Slug: def.Slug})
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		def := def
		def.ID = s.node.Generate().String()
		def.CreatedAt = time.Now()
		def.UpdatedAt = def.CreatedAt

		if err := s.definitions.Create(ctx, &def); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return err
		}

		zap.L().Info("seeded badge definition", zap.String("slug", def.Slug))
	}

	s.catalog.Invalidate()
	return nil
}

// Migrate creates the badge tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Definition{}, &Award{})
}

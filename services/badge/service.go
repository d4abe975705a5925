package badge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"reputation-engine/pkg/db/option"
	"reputation-engine/pkg/errutil"
	"reputation-engine/pkg/repository"
	"reputation-engine/services/reputation"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	catalogCacheTTL  = time.Minute
	maxGrantAttempts = 3
)

// Ledger is the slice of the reputation service the awarder depends on.
type Ledger interface {
	Account(ctx context.Context, userID string) (*reputation.Account, error)
	AwardPointsTx(ctx context.Context, tx *gorm.DB, userID string, action reputation.ActionType, opts ...reputation.AwardOption) (*reputation.Account, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	ledger    Ledger
	source    ActivitySource
	evaluator *Evaluator

	definitions repository.Repository[Definition]
	awards      repository.Repository[Award]

	catalog *CatalogCache
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger Ledger
	Source ActivitySource `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	if p.Ledger == nil {
		panic("badge service requires ledger dependency")
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		ledger:    p.Ledger,
		source:    p.Source,
		evaluator: NewEvaluator(),

		definitions: repository.ProvideStore[Definition](p.DB),
		awards:      repository.ProvideStore[Award](p.DB),

		catalog: NewCatalogCache(catalogCacheTTL),
	}
}

// CheckCriteria reports whether the account currently satisfies every
// condition of the badge. Inactive badges, empty criteria sets, unknown
// criterion keys and collaborator failures all fail closed.
func (s *Service) CheckCriteria(ctx context.Context, account *reputation.Account, def *Definition) bool {
	compiled := s.compile(def)
	return s.qualifies(ctx, account, compiled)
}

func (s *Service) compile(def *Definition) *compiledBadge {
	cb := &compiledBadge{def: def}

	criteria, err := def.CriteriaList()
	if err != nil {
		zap.L().Warn("badge has malformed criteria", zap.String("slug", def.Slug), zap.Error(err))
		cb.invalid = true
		return cb
	}

	cb.predicates, err = compileCriteria(criteria)
	if err != nil {
		zap.L().Warn("badge has unrecognized criteria", zap.String("slug", def.Slug), zap.Error(err))
		cb.invalid = true
	}

	return cb
}

func (s *Service) qualifies(ctx context.Context, account *reputation.Account, cb *compiledBadge) bool {
	def := cb.def
	if !def.IsActive || cb.invalid {
		return false
	}
	if len(cb.predicates) == 0 && def.Expression == "" {
		return false
	}

	for _, p := range cb.predicates {
		ok, err := p.eval(ctx, account, s.source)
		if err != nil {
			zap.L().Warn("badge criterion not evaluable, treating as unmet",
				zap.String("slug", def.Slug), zap.String("user_id", account.UserID), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}

	if def.Expression != "" {
		ok, err := s.evaluator.Evaluate(def.Expression, evaluationContext(account))
		if err != nil {
			zap.L().Warn("badge expression not evaluable, treating as unmet",
				zap.String("slug", def.Slug), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}

	return true
}

// AwardToUser grants a badge once. A second call for the same (user, badge)
// pair is a successful no-op returning already=true; the unique index on
// badge_awards makes that hold under concurrent callers too.
func (s *Service) AwardToUser(ctx context.Context, userID string, def *Definition, earningContext map[string]any) (*Award, bool, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("badge", def.Slug),
	)

	if strings.TrimSpace(userID) == "" {
		return nil, false, errutil.BadRequest("user_id is required", nil)
	}

	existing, err := s.awards.FindOne(ctx, &Award{UserID: userID, BadgeID: def.ID})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	var contextJSON datatypes.JSON
	if earningContext != nil {
		raw, err := json.Marshal(earningContext)
		if err != nil {
			return nil, false, errutil.BadRequest("invalid earning context", err)
		}
		contextJSON = datatypes.JSON(raw)
	}

	award := &Award{
		ID:             s.node.Generate().String(),
		UserID:         userID,
		BadgeID:        def.ID,
		EarnedAt:       time.Now(),
		EarningContext: contextJSON,
	}

	grant := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.awards.WithTrx(tx).Create(ctx, award); err != nil {
				return err
			}

			if err := tx.Model(&Definition{}).
				Where("id = ?", def.ID).
				UpdateColumn("awarded_count", gorm.Expr("awarded_count + 1")).Error; err != nil {
				return err
			}

			if def.PointsValue > 0 {
				_, err := s.ledger.AwardPointsTx(ctx, tx, userID, reputation.BadgeEarned,
					reputation.WithPoints(def.PointsValue),
					reputation.WithSource("badge", def.ID),
					reputation.WithDescription("Earned badge: "+def.Name),
				)
				return err
			}

			return nil
		})
	}

	for attempt := 1; ; attempt++ {
		err = grant()
		if err == nil {
			break
		}

		if isUniqueViolation(err) {
			existing, findErr := s.awards.FindOne(ctx, &Award{UserID: userID, BadgeID: def.ID})
			if findErr != nil {
				return nil, false, findErr
			}
			if existing != nil {
				// lost the race; the concurrent call holds the award
				return existing, true, nil
			}
			// the violation came from elsewhere in the tx, typically two
			// first awards lazily creating the same account; replay
		} else if !reputation.IsRetryableConflict(err) {
			zapLog.Error("failed to grant badge", zap.Error(err))
			return nil, false, err
		}

		if attempt >= maxGrantAttempts {
			zapLog.Error("failed to grant badge", zap.Error(err))
			return nil, false, errutil.Internal("badge grant not committed after retries", err)
		}
		zapLog.Warn("retrying conflicting badge grant", zap.Int("attempt", attempt), zap.Error(err))
	}

	zapLog.Info("badge granted", zap.Int64("points_value", def.PointsValue))
	return award, false, nil
}

// CheckAndAwardBadges evaluates the full active catalog against the user's
// current standing and grants whatever newly qualifies. Callers chain it
// after AwardPoints; repeats without new activity award nothing.
func (s *Service) CheckAndAwardBadges(ctx context.Context, userID string) ([]*Award, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	account, err := s.ledger.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}

	compiled, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, err
	}

	var granted []*Award
	for _, cb := range compiled {
		if !s.qualifies(ctx, account, cb) {
			continue
		}

		award, already, err := s.AwardToUser(ctx, userID, cb.def, map[string]any{
			"total_points": account.TotalPoints,
			"posts_count":  account.PostsCount,
			"rank_level":   account.RankLevel,
		})
		if err != nil {
			return granted, err
		}
		if already {
			continue
		}

		award.Badge = cb.def
		granted = append(granted, award)

		// the point reward may have pushed the account over further
		// thresholds; later badges must see the fresh state
		if cb.def.PointsValue > 0 {
			account, err = s.ledger.Account(ctx, userID)
			if err != nil {
				return granted, err
			}
		}
	}

	return granted, nil
}

// UserAwards lists the badges a user holds, newest first.
func (s *Service) UserAwards(ctx context.Context, userID string) ([]*Award, error) {
	var awards []*Award
	err := s.db.WithContext(ctx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&awards).Error
	if err != nil {
		return nil, err
	}
	return awards, nil
}

// Definitions lists the catalog, active entries only unless includeInactive.
func (s *Service) Definitions(ctx context.Context, includeInactive bool) ([]*Definition, error) {
	if includeInactive {
		return s.definitions.Find(ctx, &Definition{}, option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}))
	}
	return s.definitions.Find(ctx, &Definition{IsActive: true})
}

func (s *Service) activeCatalog(ctx context.Context) ([]*compiledBadge, error) {
	return s.catalog.Load(func() ([]*compiledBadge, error) {
		defs, err := s.definitions.Find(ctx, &Definition{IsActive: true})
		if err != nil {
			return nil, err
		}

		compiled := make([]*compiledBadge, 0, len(defs))
		for _, def := range defs {
			compiled = append(compiled, s.compile(def))
		}
		return compiled, nil
	})
}

// InvalidateCatalog drops the compiled catalog after definitions change.
func (s *Service) InvalidateCatalog() {
	s.catalog.Invalidate()
}

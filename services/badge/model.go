package badge

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Type groups badges by how they are earned.
type Type string

const (
	TypeActivity    Type = "activity"
	TypeAchievement Type = "achievement"
	TypeMilestone   Type = "milestone"
	TypeSpecial     Type = "special"
)

// Rarity carries the display weight of a badge.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// RarityInfo is presentation metadata for a rarity level.
type RarityInfo struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

var rarityInfo = map[Rarity]RarityInfo{
	RarityCommon:    {Name: "Common", Color: "#9E9E9E"},
	RarityUncommon:  {Name: "Uncommon", Color: "#4CAF50"},
	RarityRare:      {Name: "Rare", Color: "#2196F3"},
	RarityEpic:      {Name: "Epic", Color: "#9C27B0"},
	RarityLegendary: {Name: "Legendary", Color: "#FF9800"},
}

// Info resolves presentation metadata; unknown rarities render as common.
func (r Rarity) Info() RarityInfo {
	if info, ok := rarityInfo[r]; ok {
		return info
	}
	return rarityInfo[RarityCommon]
}

// Criterion is one condition in a badge's criteria set. All criteria in the
// set must hold for the badge to qualify.
type Criterion struct {
	Field     string `json:"field"`
	Threshold int64  `json:"threshold"`
}

// Definition is a catalog entry. Effectively immutable after creation; only
// awarded_count moves.
type Definition struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Slug        string `gorm:"column:slug;uniqueIndex;not null" json:"slug"`
	Name        string `gorm:"column:name;not null" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	Type        Type   `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Rarity      Rarity `gorm:"column:rarity;type:varchar(20);not null;default:'common'" json:"rarity"`

	PointsValue int64          `gorm:"column:points_value;not null;default:0" json:"points_value"`
	Criteria    datatypes.JSON `gorm:"column:criteria;type:jsonb" json:"criteria,omitempty"`
	// Expression is an optional CEL predicate used by special badges whose
	// conditions do not fit the criteria key set.
	Expression string `gorm:"column:expression;type:text" json:"expression,omitempty"`

	IsActive     bool  `gorm:"column:is_active;not null;default:true" json:"is_active"`
	AwardedCount int64 `gorm:"column:awarded_count;not null;default:0" json:"awarded_count"`
}

func (Definition) TableName() string { return "badge_definitions" }

// CriteriaList decodes the stored criteria set.
func (d *Definition) CriteriaList() ([]Criterion, error) {
	if len(d.Criteria) == 0 {
		return nil, nil
	}
	var criteria []Criterion
	if err := json.Unmarshal(d.Criteria, &criteria); err != nil {
		return nil, err
	}
	return criteria, nil
}

// MustCriteria encodes a criteria set for seeding and tests.
func MustCriteria(criteria ...Criterion) datatypes.JSON {
	raw, err := json.Marshal(criteria)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(raw)
}

// Award is the one-per-user-per-badge grant record. The composite unique
// index is the exactly-once guarantee; application checks are only a
// fast path in front of it.
type Award struct {
	ID string `gorm:"column:id;primaryKey" json:"id"`

	UserID  string `gorm:"column:user_id;not null;uniqueIndex:idx_badge_awards_user_badge,priority:1" json:"user_id"`
	BadgeID string `gorm:"column:badge_id;not null;uniqueIndex:idx_badge_awards_user_badge,priority:2" json:"badge_id"`

	EarnedAt       time.Time      `gorm:"column:earned_at" json:"earned_at"`
	EarningContext datatypes.JSON `gorm:"column:earning_context;type:jsonb" json:"earning_context,omitempty"`
	IsFeatured     bool           `gorm:"column:is_featured;not null;default:false" json:"is_featured"`

	Badge *Definition `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (Award) TableName() string { return "badge_awards" }

package badge

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isUniqueViolation matches the duplicate-key errors postgres and sqlite
// raise when the (user_id, badge_id) index rejects a second award.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

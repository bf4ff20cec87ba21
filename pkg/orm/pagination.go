package orm

import "gorm.io/gorm"

// MaxPageSize caps list endpoints whatever the client asks for.
const MaxPageSize = 100

// ApplyPagination is a no-op when page or limit is not positive.
func ApplyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	if page <= 0 || limit <= 0 {
		return db
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return db.Offset((page - 1) * limit).Limit(limit)
}

package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock to the next query on dialects that support it.
// SQLite serialises writers at the database level and rejects the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if !SupportsRowLocks(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func SupportsRowLocks(tx *gorm.DB) bool {
	if tx == nil || tx.Dialector == nil {
		return false
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

// ForUpdateSuffix is the raw SQL counterpart of ForUpdate.
func ForUpdateSuffix(tx *gorm.DB) string {
	if SupportsRowLocks(tx) {
		return " FOR UPDATE"
	}
	return ""
}

package models

import "gorm.io/gorm"

// AllModels returns all models for migration.
// Users and groups come first since the rest reference them.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&GroupMembership{},
		&Book{},
		&Like{},
		&Comment{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

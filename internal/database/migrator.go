package database

import (
	"multi-org-integration-platform/internal/models"

	"gorm.io/gorm"
)

// TableStatus reports whether a model's table exists
type TableStatus struct {
	Table  string
	Exists bool
}

// Migrator handles database migrations
type Migrator struct {
	db *Connection
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *Connection) *Migrator {
	return &Migrator{db: db}
}

// dependency order: parents before children
func migrationModels() []interface{} {
	return []interface{}{
		&models.Organisation{},
		&models.Integration{},
		&models.FieldMapping{},
		&models.SyncLog{},
	}
}

// Up creates or updates every table
func (m *Migrator) Up() error {
	return m.db.AutoMigrate(migrationModels()...)
}

// Down drops every table, children first
func (m *Migrator) Down() error {
	all := migrationModels()
	reversed := make([]interface{}, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		reversed = append(reversed, all[i])
	}
	return m.db.Migrator().DropTable(reversed...)
}

// Status lists each table and whether it exists
func (m *Migrator) Status() ([]TableStatus, error) {
	var statuses []TableStatus
	for _, model := range migrationModels() {
		stmt := &gorm.Statement{DB: m.db.DB}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		statuses = append(statuses, TableStatus{
			Table:  stmt.Schema.Table,
			Exists: m.db.Migrator().HasTable(model),
		})
	}
	return statuses, nil
}

package db

import (
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/models"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

const sqlitePrefix = "sqlite:"

// Open picks the driver from the DSN: "sqlite:<path>" opens the pure-Go sqlite
// driver, anything else is treated as a MySQL DSN.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		if !strings.Contains(path, "?") {
			path += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
		}
		return gorm.Open(gormsqlite.Open(path), cfg)
	}
	return gorm.Open(mysql.Open(dsn), cfg)
}

// Connect opens the database and migrates every table; it exits the process on failure.
func Connect(dsn string) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		logger.L().Fatal("db open", zap.Error(err))
	}
	if err := Migrate(gdb); err != nil {
		logger.L().Fatal("db migrate", zap.Error(err))
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&studio.Session{},
		&studio.Message{},
		&studio.HistoryEntry{},
		&studio.Job{},
	)
}

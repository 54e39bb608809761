package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rehiy/web-shortrange/models"
)

var db *gorm.DB

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}

// InitDB 打开数据库并迁移数据表，须在使用其它函数前调用
func InitDB(dbPath string) error {
	if dbPath == "" {
		dbPath = "data/shortrange.db"
	}

	// 创建目录
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return err
	}

	conn, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	db = conn

	if err := createTables(); err != nil {
		return err
	}

	log.Printf("Database initialized at: %s", dbPath)
	return nil
}

// createTables 创建数据表
func createTables() error {
	err := db.AutoMigrate(
		&models.Event{},
		&models.Webhook{},
		&models.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	// 初始化默认设置
	if err := InitDefaultSettings(); err != nil {
		return fmt.Errorf("failed to init default settings: %w", err)
	}

	return nil
}

package database

import (
	"errors"
	"fmt"

	"shopadmin/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate 执行 migrations 目录下尚未应用的迁移，返回当前版本
func Migrate(cfg config.DatabaseConfig) (uint, error) {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.MigrationDSN())
	if err != nil {
		return 0, fmt.Errorf("初始化数据库迁移失败: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("执行数据库迁移失败: %w", err)
	}
	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取迁移版本失败: %w", err)
	}
	return version, nil
}

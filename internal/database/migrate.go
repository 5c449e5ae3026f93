// Package database は保存領域のデータベース接続（PostgreSQL/SQLite）とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtyMigration は前回のマイグレーションが途中で失敗したまま残っていることを示す。
var ErrDirtyMigration = errors.New("database: schema is dirty")

// NewMigrator は埋め込みSQLを元にPostgreSQL向けのmigrateインスタンスを生成する。
// SQLiteはOpenSQLiteでテーブルを作るので使わない。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrator: %w", err)
	}
	return m, nil
}

// MigrateUp は未適用のマイグレーションをすべて適用し、適用後のスキーマバージョンを返す。
// 最新であればそのままのバージョンを返す。dirtyな状態では何もせずErrDirtyMigrationを返す。
func MigrateUp(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return 0, ErrDirtyMigration
	} else if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

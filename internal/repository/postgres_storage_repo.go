package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStorageRepo はPostgreSQLを使用した保存領域リポジトリ。
type PostgresStorageRepo struct {
	db *sql.DB
}

// NewPostgresStorageRepo はPostgresStorageRepoを生成する。
func NewPostgresStorageRepo(db *sql.DB) *PostgresStorageRepo {
	return &PostgresStorageRepo{db: db}
}

// Get は指定キーの値を取得する。見つからない場合はfalseを返す。
func (r *PostgresStorageRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM local_storage WHERE key = $1`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("保存データの取得に失敗しました: %w", err)
	}
	return value, true, nil
}

// Set は指定キーに値を保存する。INSERT ON CONFLICTで冪等に上書きする。
func (r *PostgresStorageRepo) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("保存データの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresStorageRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = $1`, key); err != nil {
		return fmt.Errorf("保存データの削除に失敗しました: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStorageRepo はSQLiteを使用した保存領域リポジトリ。
// テーブルはdatabase.OpenSQLiteで作成済みであること。
type SQLiteStorageRepo struct {
	db *sql.DB
}

// NewSQLiteStorageRepo はSQLiteStorageRepoを生成する。
func NewSQLiteStorageRepo(db *sql.DB) *SQLiteStorageRepo {
	return &SQLiteStorageRepo{db: db}
}

// Get は指定キーの値を取得する。
func (r *SQLiteStorageRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("保存データの取得に失敗しました: %w", err)
	}
	return value, true, nil
}

// Set は指定キーに値を保存する。
func (r *SQLiteStorageRepo) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("保存データの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *SQLiteStorageRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("保存データの削除に失敗しました: %w", err)
	}
	return nil
}

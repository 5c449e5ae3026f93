// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
)

// ErrEmptyKey はキーが空の場合のエラー。
var ErrEmptyKey = errors.New("storage key is empty")

// StorageRepository はキーと値の組を永続化する保存領域のインターフェース。
// 値は呼び出し側がJSONなどにエンコードしたバイト列をそのまま保持する。
type StorageRepository interface {
	// Get は指定キーの値を取得する。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set は指定キーに値を保存する。既存の値は上書きする。
	Set(ctx context.Context, key string, value []byte) error

	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

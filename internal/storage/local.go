// Package storage はメディアファイルのストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store はメディアファイルの保存・取得・削除を提供します。
// パスはすべてメディアルートからの相対パス（スラッシュ区切り）で指定します。
type Store interface {
	Save(ctx context.Context, rel string, data []byte) error
	Open(rel string) (*os.File, error)
	Delete(rel string) error
	Abs(rel string) string
}

// Local はローカルファイルシステム上のストレージ実装です。
type Local struct {
	root string
}

// NewLocal はメディアルートを基点とするローカルストレージを作成します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Save はデータを保存します。中間ディレクトリは自動的に作成されます。
func (l *Local) Save(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// Open は保存済みファイルを読み取り用に開きます。
func (l *Local) Open(rel string) (*os.File, error) {
	path, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete はファイルを削除します。存在しない場合もエラーにしません。
func (l *Local) Delete(rel string) error {
	path, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Abs は相対パスをローカルの絶対パスに変換します。
func (l *Local) Abs(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// resolve はルート外への脱出を防ぎつつ絶対パスを組み立てます。
func (l *Local) resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("relative path is required")
	}
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(path, l.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes storage root: %s", rel)
	}
	return path, nil
}

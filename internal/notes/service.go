package notes

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/yourusername/note-forge/internal/storage"
)

// ServiceRepository は Service が必要とする永続化操作です。
type ServiceRepository interface {
	CreateNote(ctx context.Context, title, description string, now time.Time) (*Note, error)
	NoteByID(ctx context.Context, id int64) (*Note, error)
	ListNotes(ctx context.Context, page, perPage int) ([]Note, bool, int, error)
	TouchNote(ctx context.Context, id int64, now time.Time) error

	CreateEntry(ctx context.Context, noteID int64, content string, now time.Time) (*Entry, error)
	EntryByID(ctx context.Context, id int64) (*Entry, error)
	UpdateEntryContent(ctx context.Context, id int64, content string, now time.Time) error
	DeleteEntry(ctx context.Context, id int64) error
	ListEntriesByNote(ctx context.Context, noteID int64, page, perPage int) ([]Entry, bool, int, error)

	ImagesByEntry(ctx context.Context, entryID int64) ([]EmbeddedImage, error)
	CreateImage(ctx context.Context, entryID int64, name, storagePath string) (*EmbeddedImage, error)
	DeleteImage(ctx context.Context, id int64) error
}

// Service はノートとエントリーの作成・更新・削除を提供します。
// エントリー保存時は本文の正規化（インライン画像の外部化）を行い、
// エントリー行の保存 → 新規画像の実体化 → 孤児画像の削除 の順で適用します。
type Service struct {
	repo   ServiceRepository
	media  storage.Store
	logger *log.Logger
	now    func() time.Time
}

// NewService はサービスを作成します。
func NewService(repo ServiceRepository, media storage.Store, logger *log.Logger) *Service {
	return &Service{
		repo:   repo,
		media:  media,
		logger: logger,
		now:    time.Now,
	}
}

// CreateNote はノートを作成します。タイトルは必須です。
func (s *Service) CreateNote(ctx context.Context, title, description string) (*Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, newError(CodeInvalidInput, "ノートにはタイトルが必要です。", nil)
	}
	return s.repo.CreateNote(ctx, title, description, s.now().UTC())
}

// ListNotes は更新日時の降順でノートをページングして返します。
func (s *Service) ListNotes(ctx context.Context, page, perPage int) ([]Note, bool, int, error) {
	return s.repo.ListNotes(ctx, page, perPage)
}

// NoteByID はノートを取得します。
func (s *Service) NoteByID(ctx context.Context, id int64) (*Note, error) {
	return s.repo.NoteByID(ctx, id)
}

// CreateEntry は本文を正規化してエントリーを作成します。
func (s *Service) CreateEntry(ctx context.Context, noteID int64, content string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, newError(CodeInvalidInput, "エントリーには本文が必要です。", nil)
	}
	note, err := s.repo.NoteByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, newError(CodeNotFound, "指定されたノートは存在しません。", nil)
	}

	now := s.now().UTC()
	norm, err := NormalizeContent(content, nil, now)
	if err != nil {
		return nil, err
	}

	entry, err := s.repo.CreateEntry(ctx, noteID, norm.Content, now)
	if err != nil {
		return nil, err
	}
	if err := s.commitImages(ctx, entry.ID, norm); err != nil {
		return nil, err
	}
	if err := s.repo.TouchNote(ctx, noteID, now); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry は本文を正規化してエントリーを更新します。
// 保存後、エントリーが所有する画像セットは本文中の外部参照セットと一致します。
func (s *Service) UpdateEntry(ctx context.Context, noteID, entryID int64, content string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, newError(CodeInvalidInput, "エントリーには本文が必要です。", nil)
	}
	entry, err := s.entryOfNote(ctx, noteID, entryID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ImagesByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	norm, err := NormalizeContent(content, existing, now)
	if err != nil {
		return nil, err
	}

	// 本文を先に確定してから副作用を適用する
	if err := s.repo.UpdateEntryContent(ctx, entryID, norm.Content, now); err != nil {
		return nil, err
	}
	if err := s.commitImages(ctx, entryID, norm); err != nil {
		return nil, err
	}
	if err := s.repo.TouchNote(ctx, noteID, now); err != nil {
		return nil, err
	}

	entry.Content = norm.Content
	entry.Updated = now
	return entry, nil
}

// DeleteEntry はエントリーと所有する画像をすべて削除します。
func (s *Service) DeleteEntry(ctx context.Context, noteID, entryID int64) (*Entry, error) {
	entry, err := s.entryOfNote(ctx, noteID, entryID)
	if err != nil {
		return nil, err
	}

	images, err := s.repo.ImagesByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if err := s.repo.DeleteImage(ctx, img.ID); err != nil {
			return nil, err
		}
		if err := s.media.Delete(img.StoragePath); err != nil {
			s.logger.Printf("failed to delete image file %s: %v", img.StoragePath, err)
		}
	}

	if err := s.repo.DeleteEntry(ctx, entryID); err != nil {
		return nil, err
	}
	if err := s.repo.TouchNote(ctx, noteID, s.now().UTC()); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries は作成日時の降順でエントリーをページングして返します。
func (s *Service) ListEntries(ctx context.Context, noteID int64, page, perPage int) ([]Entry, bool, int, error) {
	return s.repo.ListEntriesByNote(ctx, noteID, page, perPage)
}

// commitImages は正規化結果の副作用を適用します。
// 新規画像の保存（ファイル → レコードの順）、次に孤児画像の削除です。
func (s *Service) commitImages(ctx context.Context, entryID int64, norm *NormalizedContent) error {
	for _, img := range norm.ToCreate {
		if err := s.media.Save(ctx, img.StoragePath, img.Data); err != nil {
			return newError(CodeStorageError, "画像の保存に失敗しました。", err)
		}
		if _, err := s.repo.CreateImage(ctx, entryID, img.Name, img.StoragePath); err != nil {
			return err
		}
	}
	for _, img := range norm.ToDelete {
		if err := s.repo.DeleteImage(ctx, img.ID); err != nil {
			return err
		}
		if err := s.media.Delete(img.StoragePath); err != nil {
			s.logger.Printf("failed to delete image file %s: %v", img.StoragePath, err)
		}
	}
	return nil
}

func (s *Service) entryOfNote(ctx context.Context, noteID, entryID int64) (*Entry, error) {
	note, err := s.repo.NoteByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, newError(CodeNotFound, "指定されたノートは存在しません。", nil)
	}
	entry, err := s.repo.EntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.NoteID != noteID {
		return nil, newError(CodeNotFound, "指定されたエントリーは存在しません。", nil)
	}
	return entry, nil
}

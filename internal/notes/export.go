package notes

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/note-forge/internal/storage"
)

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// ExportRepository は Exporter が必要とする永続化操作です。
type ExportRepository interface {
	NoteByID(ctx context.Context, id int64) (*Note, error)
	EntriesByNoteUpdatedDesc(ctx context.Context, noteID int64) ([]Entry, error)
	RenderedDocumentByNote(ctx context.Context, noteID int64) (*RenderedDocument, error)
	RenderedDocumentByName(ctx context.Context, name string) (*RenderedDocument, error)
	DeleteRenderedDocument(ctx context.Context, id int64) error
	ReplaceRenderedDocument(ctx context.Context, noteID int64, artifactName string, now time.Time) (*RenderedDocument, error)
	RefreshRenderedDocument(ctx context.Context, id int64, now time.Time) error
}

// ExportResult はPDF出力ジョブの成果です。
type ExportResult struct {
	NoteID       int64  `json:"noteId"`
	ArtifactName string `json:"artifactName"`
	StoragePath  string `json:"storagePath"` // メディアルートからの相対パス
	Pages        int    `json:"pages,omitempty"`
	Cached       bool   `json:"cached"`
}

// Exporter はノート1冊のPDF出力ジョブを駆動します。
// 有効なキャッシュ済み成果物があれば再生成せずそれを返します。
type Exporter struct {
	repo   ExportRepository
	media  storage.Store
	conv   Converter
	now    func() time.Time
	verify func(destPath string) (int, error)
}

// NewExporter はエクスポーターを作成します。
func NewExporter(repo ExportRepository, media storage.Store, conv Converter) *Exporter {
	return &Exporter{
		repo:   repo,
		media:  media,
		conv:   conv,
		now:    time.Now,
		verify: verifyArtifact,
	}
}

// RunExport はノートのPDFを生成し、成果物への参照を返します。
// 進捗は ヘッダー1回 + エントリー数 + 描画1回 の区切りで単調増加し、
// 最後に必ず100へ到達します。
func (e *Exporter) RunExport(ctx context.Context, noteID int64, report ProgressReporter) (*ExportResult, error) {
	note, err := e.repo.NoteByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, newError(CodeNotFound, "指定されたノートは存在しません。", nil)
	}

	entries, err := e.repo.EntriesByNoteUpdatedDesc(ctx, noteID)
	if err != nil {
		return nil, err
	}

	// キャッシュ確認。有効なら再生成せず既存の成果物を返す
	cached, err := e.repo.RenderedDocumentByNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if cached.Valid(note, entries) {
		if err := e.repo.RefreshRenderedDocument(ctx, cached.ID, e.now().UTC()); err != nil {
			return nil, err
		}
		reportProgress(report, "completed", 100)
		return &ExportResult{
			NoteID:       noteID,
			ArtifactName: cached.ArtifactName,
			StoragePath:  artifactStoragePath(cached.ArtifactName),
			Cached:       true,
		}, nil
	}

	reportProgress(report, "start", 0)

	// ヘッダーと最終描画の2区切りをエントリー数に加えて進捗幅を決める
	step := 100 / (len(entries) + 2)
	progress := 0

	asm := NewAssembler(e.conv, e.media.Abs)
	if err := asm.AddHeader(note); err != nil {
		return nil, err
	}
	progress += step
	reportProgress(report, "header", progress)

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := asm.AddEntry(&entries[i]); err != nil {
			return nil, err
		}
		progress += step
		reportProgress(report, "entry", progress)
	}

	artifactName := strings.ReplaceAll(uuid.NewString(), "-", "") + ".pdf"
	rel := artifactStoragePath(artifactName)
	if err := asm.Render(ctx, e.media.Abs(rel)); err != nil {
		return nil, err
	}

	pages, err := e.verify(e.media.Abs(rel))
	if err != nil {
		return nil, err
	}

	reportProgress(report, "completed", 100)

	if err := e.registerArtifact(ctx, noteID, artifactName); err != nil {
		return nil, err
	}

	return &ExportResult{
		NoteID:       noteID,
		ArtifactName: artifactName,
		StoragePath:  rel,
		Pages:        pages,
	}, nil
}

// registerArtifact は成果物レコードを登録します。
// 同名レコードが既にあれば先に削除し、同一ノートの旧成果物は
// レコードごと置き換えます。
func (e *Exporter) registerArtifact(ctx context.Context, noteID int64, artifactName string) error {
	if existing, err := e.repo.RenderedDocumentByName(ctx, artifactName); err != nil {
		return err
	} else if existing != nil {
		if err := e.repo.DeleteRenderedDocument(ctx, existing.ID); err != nil {
			return err
		}
	}

	// 置き換えられる旧成果物のファイルはベストエフォートで削除する
	if old, err := e.repo.RenderedDocumentByNote(ctx, noteID); err == nil && old != nil {
		_ = e.media.Delete(artifactStoragePath(old.ArtifactName))
	}

	_, err := e.repo.ReplaceRenderedDocument(ctx, noteID, artifactName, e.now().UTC())
	return err
}

func artifactStoragePath(name string) string {
	return "notes/pdf/" + name
}

// ArtifactMediaPath は成果物の公開URLパスを返します。
func ArtifactMediaPath(name string) string {
	return "/media/" + artifactStoragePath(name)
}

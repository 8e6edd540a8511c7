package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Repository はノート関連テーブルへの読み書きを提供します。
type Repository struct {
	db *sql.DB
}

// NewRepository はリポジトリを作成します。
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// --- ノート ---

// CreateNote はノートを作成します。
func (r *Repository) CreateNote(ctx context.Context, title, description string, now time.Time) (*Note, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (title, description, created, updated) VALUES (?, ?, ?, ?)`,
		title, description, now, now)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, newError(CodeInvalidInput, "同じタイトルのノートが既に存在します。", err)
		}
		return nil, fmt.Errorf("failed to insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Note{ID: id, Title: title, Description: description, Created: now, Updated: now}, nil
}

// NoteByID はノートを取得します。存在しない場合は nil を返します。
func (r *Repository) NoteByID(ctx context.Context, id int64) (*Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, created, updated FROM notes WHERE id = ?`, id)
	var n Note
	var description sql.NullString
	if err := row.Scan(&n.ID, &n.Title, &description, &n.Created, &n.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.Description = description.String
	return &n, nil
}

// ListNotes は更新日時の降順でノートをページングして返します。
// 戻り値は (ノート一覧, 次ページの有無, 次ページ番号) です。
func (r *Repository) ListNotes(ctx context.Context, page, perPage int) ([]Note, bool, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, created, updated FROM notes
		 ORDER BY updated DESC LIMIT ? OFFSET ?`, perPage+1, offset)
	if err != nil {
		return nil, false, 0, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var description sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &description, &n.Created, &n.Updated); err != nil {
			return nil, false, 0, err
		}
		n.Description = description.String
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, false, 0, err
	}

	hasNext := len(notes) > perPage
	if hasNext {
		notes = notes[:perPage]
	}
	nextNum := 0
	if hasNext {
		nextNum = page + 1
	}
	return notes, hasNext, nextNum, nil
}

// TouchNote はノートの updated を進めます。エントリー変更時にも呼ばれます。
func (r *Repository) TouchNote(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notes SET updated = ? WHERE id = ?`, now, id)
	return err
}

// --- エントリー ---

// CreateEntry はエントリーを作成します。
func (r *Repository) CreateEntry(ctx context.Context, noteID int64, content string, now time.Time) (*Entry, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (content, note_id, created, updated) VALUES (?, ?, ?, ?)`,
		content, noteID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Entry{ID: id, Content: content, NoteID: noteID, Created: now, Updated: now}, nil
}

// EntryByID はエントリーを取得します。存在しない場合は nil を返します。
func (r *Repository) EntryByID(ctx context.Context, id int64) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content, note_id, created, updated FROM entries WHERE id = ?`, id)
	var e Entry
	if err := row.Scan(&e.ID, &e.Content, &e.NoteID, &e.Created, &e.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// UpdateEntryContent は本文を更新し updated を進めます。
func (r *Repository) UpdateEntryContent(ctx context.Context, id int64, content string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET content = ?, updated = ? WHERE id = ?`, content, now, id)
	return err
}

// DeleteEntry はエントリーを削除します。
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	return err
}

// ListEntriesByNote は作成日時の降順でエントリーをページングして返します。
func (r *Repository) ListEntriesByNote(ctx context.Context, noteID int64, page, perPage int) ([]Entry, bool, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, note_id, created, updated FROM entries
		 WHERE note_id = ? ORDER BY created DESC LIMIT ? OFFSET ?`, noteID, perPage+1, offset)
	if err != nil {
		return nil, false, 0, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, false, 0, err
	}

	hasNext := len(entries) > perPage
	if hasNext {
		entries = entries[:perPage]
	}
	nextNum := 0
	if hasNext {
		nextNum = page + 1
	}
	return entries, hasNext, nextNum, nil
}

// EntriesByNoteUpdatedDesc はPDF出力用に、更新日時の降順で全エントリーを返します。
func (r *Repository) EntriesByNoteUpdatedDesc(ctx context.Context, noteID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, note_id, created, updated FROM entries
		 WHERE note_id = ? ORDER BY updated DESC`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// isDuplicateEntry はMySQLの一意制約違反（1062）かどうかを判定します。
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Content, &e.NoteID, &e.Created, &e.Updated); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- 埋め込み画像 ---

// ImagesByEntry はエントリーが所有する画像の一覧を返します。
func (r *Repository) ImagesByEntry(ctx context.Context, entryID int64) ([]EmbeddedImage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, storage_path, entry_id FROM entry_images WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []EmbeddedImage
	for rows.Next() {
		var img EmbeddedImage
		if err := rows.Scan(&img.ID, &img.Name, &img.StoragePath, &img.EntryID); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// CreateImage は画像レコードを作成します。
func (r *Repository) CreateImage(ctx context.Context, entryID int64, name, storagePath string) (*EmbeddedImage, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entry_images (name, storage_path, entry_id) VALUES (?, ?, ?)`,
		name, storagePath, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &EmbeddedImage{ID: id, Name: name, StoragePath: storagePath, EntryID: entryID}, nil
}

// DeleteImage は画像レコードを削除します。
func (r *Repository) DeleteImage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entry_images WHERE id = ?`, id)
	return err
}

// --- PDF成果物 ---

// RenderedDocumentByNote はノートに紐付く成果物を返します。存在しなければ nil です。
func (r *Repository) RenderedDocumentByNote(ctx context.Context, noteID int64) (*RenderedDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, artifact_name, created_at, note_id FROM rendered_documents WHERE note_id = ?`, noteID)
	return scanRendered(row)
}

// RenderedDocumentByName は成果物名で検索します。存在しなければ nil です。
func (r *Repository) RenderedDocumentByName(ctx context.Context, name string) (*RenderedDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, artifact_name, created_at, note_id FROM rendered_documents WHERE artifact_name = ?`, name)
	return scanRendered(row)
}

func scanRendered(row *sql.Row) (*RenderedDocument, error) {
	var d RenderedDocument
	if err := row.Scan(&d.ID, &d.ArtifactName, &d.CreatedAt, &d.NoteID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DeleteRenderedDocument は成果物レコードを削除します。
func (r *Repository) DeleteRenderedDocument(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rendered_documents WHERE id = ?`, id)
	return err
}

// ReplaceRenderedDocument はノートの成果物レコードを新しいものへ置き換えます。
func (r *Repository) ReplaceRenderedDocument(ctx context.Context, noteID int64, artifactName string, now time.Time) (*RenderedDocument, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM rendered_documents WHERE note_id = ?`, noteID); err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO rendered_documents (artifact_name, created_at, note_id) VALUES (?, ?, ?)`,
		artifactName, now, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rendered document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &RenderedDocument{ID: id, ArtifactName: artifactName, CreatedAt: now, NoteID: noteID}, nil
}

// RefreshRenderedDocument はキャッシュ有効時に作成日時を更新します。
func (r *Repository) RefreshRenderedDocument(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rendered_documents SET created_at = ? WHERE id = ?`, now, id)
	return err
}

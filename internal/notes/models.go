// Package notes はノート・エントリーのドメインモデルとPDF出力機能を提供します。
package notes

import "time"

// Note は1冊のノートを表します。RenderedDocument を高々1つ所有します。
type Note struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// Entry はノートに属する1件のリッチテキスト単位です。
type Entry struct {
	ID      int64     `json:"id"`
	Content string    `json:"content"`
	NoteID  int64     `json:"note_id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// EmbeddedImage はエントリー本文から抽出された画像1枚を表します。
// ライフサイクルは所有エントリーに厳密に紐付きます。
type EmbeddedImage struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	StoragePath string `json:"storage_path"`
	EntryID     int64  `json:"entry_id"`
}

// RenderedDocument はノートのPDF成果物のキャッシュを表します。
// CreatedAt がノートと全エントリーの updated より新しい場合のみ有効です。
type RenderedDocument struct {
	ID           int64     `json:"id"`
	ArtifactName string    `json:"artifact_name"`
	CreatedAt    time.Time `json:"created_at"`
	NoteID       int64     `json:"note_id"`
}

// Valid はキャッシュ済み成果物がノートの現在状態を反映しているかを判定します。
func (r *RenderedDocument) Valid(note *Note, entries []Entry) bool {
	if r == nil || note == nil {
		return false
	}
	if !r.CreatedAt.After(note.Updated) {
		return false
	}
	for _, entry := range entries {
		if !r.CreatedAt.After(entry.Updated) {
			return false
		}
	}
	return true
}

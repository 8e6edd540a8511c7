package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/note-forge/internal/storage"
)

// NoteService はノート操作を提供するサービスが実装します。
type NoteService interface {
	CreateNote(ctx context.Context, title, description string) (*Note, error)
	ListNotes(ctx context.Context, page, perPage int) ([]Note, bool, int, error)
	NoteByID(ctx context.Context, id int64) (*Note, error)
}

// EntryService はエントリー操作を提供するサービスが実装します。
type EntryService interface {
	CreateEntry(ctx context.Context, noteID int64, content string) (*Entry, error)
	UpdateEntry(ctx context.Context, noteID, entryID int64, content string) (*Entry, error)
	DeleteEntry(ctx context.Context, noteID, entryID int64) (*Entry, error)
	ListEntries(ctx context.Context, noteID int64, page, perPage int) ([]Entry, bool, int, error)
}

// ExportScheduler はPDF出力ジョブをキューへ投入するためのインターフェースです。
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, noteID int64) (string, error)
}

// HandlerOptions はハンドラー共通の設定です。
type HandlerOptions struct {
	NotesPerPage   int
	EntriesPerPage int
}

type noteRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type entryRequest struct {
	Content string `json:"content"`
}

// ListNotesHandler は GET /api/notes のハンドラーを返します。
func ListNotesHandler(svc NoteService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryAsInt(c, "npage", 1)
		notes, hasNext, nextNum, err := svc.ListNotes(c.Request.Context(), page, opts.NotesPerPage)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if notes == nil {
			notes = []Note{}
		}
		c.JSON(http.StatusOK, gin.H{
			"notes":    notes,
			"has_next": hasNext,
			"next_num": nextNum,
		})
	}
}

// CreateNoteHandler は POST /api/notes のハンドラーを返します。
func CreateNoteHandler(svc NoteService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req noteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "title と description を JSON で送ってください。",
			})
			return
		}
		note, err := svc.CreateNote(c.Request.Context(), req.Title, req.Description)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"note": note})
	}
}

// ListEntriesHandler は GET /api/notes/:noteID/entries のハンドラーを返します。
func ListEntriesHandler(noteSvc NoteService, entrySvc EntryService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		noteID, ok := paramAsID(c, "noteID")
		if !ok {
			return
		}
		if !requireNote(c, noteSvc, noteID) {
			return
		}
		page := queryAsInt(c, "epage", 1)
		entries, hasNext, nextNum, err := entrySvc.ListEntries(c.Request.Context(), noteID, page, opts.EntriesPerPage)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		c.JSON(http.StatusOK, gin.H{
			"entries":  entries,
			"has_next": hasNext,
			"next_num": nextNum,
		})
	}
}

// CreateEntryHandler は POST /api/notes/:noteID/entries のハンドラーを返します。
func CreateEntryHandler(svc EntryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		noteID, ok := paramAsID(c, "noteID")
		if !ok {
			return
		}
		var req entryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "content を JSON で送ってください。",
			})
			return
		}
		entry, err := svc.CreateEntry(c.Request.Context(), noteID, req.Content)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry": entry})
	}
}

// UpdateEntryHandler は PUT /api/notes/:noteID/entries/:entryID のハンドラーを返します。
func UpdateEntryHandler(svc EntryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		noteID, ok := paramAsID(c, "noteID")
		if !ok {
			return
		}
		entryID, ok := paramAsID(c, "entryID")
		if !ok {
			return
		}
		var req entryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "content を JSON で送ってください。",
			})
			return
		}
		entry, err := svc.UpdateEntry(c.Request.Context(), noteID, entryID, req.Content)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry": entry})
	}
}

// DeleteEntryHandler は DELETE /api/notes/:noteID/entries/:entryID のハンドラーを返します。
func DeleteEntryHandler(svc EntryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		noteID, ok := paramAsID(c, "noteID")
		if !ok {
			return
		}
		entryID, ok := paramAsID(c, "entryID")
		if !ok {
			return
		}
		entry, err := svc.DeleteEntry(c.Request.Context(), noteID, entryID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry": entry})
	}
}

// ExportHandler は POST /api/notes/:noteID/export/pdf のハンドラーを返します。
// ジョブをキューに投入してすぐ戻り、描画の完了は待ちません。
func ExportHandler(noteSvc NoteService, scheduler ExportScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		noteID, ok := paramAsID(c, "noteID")
		if !ok {
			return
		}
		if !requireNote(c, noteSvc, noteID) {
			return
		}
		jobID, err := scheduler.EnqueueExport(c.Request.Context(), noteID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"report_status": "started",
			"task_id":       jobID,
		})
	}
}

// ImageHandler は GET /media/notes/img/:year/:month/:day/:filename のハンドラーを返します。
func ImageHandler(media storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rel := fmt.Sprintf("notes/img/%s/%s/%s/%s",
			c.Param("year"), c.Param("month"), c.Param("day"), c.Param("filename"))
		serveMedia(c, media, rel, "", false)
	}
}

// ArtifactHandler は GET /media/notes/pdf/:filename のハンドラーを返します。
// 成果物を添付ファイルとしてストリーム返却します。
func ArtifactHandler(media storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		serveMedia(c, media, artifactStoragePath(filename), filename, true)
	}
}

func serveMedia(c *gin.Context, media storage.Store, rel, attachmentName string, attachment bool) {
	if strings.Contains(rel, "..") {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    CodeInvalidInput,
			"message": "不正なパスです。",
		})
		return
	}

	file, err := media.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    CodeNotFound,
				"message": "ファイルが見つかりませんでした。",
			})
			return
		}
		respondWithError(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		respondWithError(c, err)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(rel, ".pdf"):
		contentType = "application/pdf"
	case strings.HasSuffix(rel, ".png"):
		contentType = "image/png"
	case strings.HasSuffix(rel, ".jpg"), strings.HasSuffix(rel, ".jpeg"):
		contentType = "image/jpeg"
	case strings.HasSuffix(rel, ".gif"):
		contentType = "image/gif"
	}

	if attachment {
		encodedName := url.PathEscape(attachmentName)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", attachmentName, encodedName))
	}
	c.Header("Content-Type", contentType)
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

func requireNote(c *gin.Context, svc NoteService, noteID int64) bool {
	note, err := svc.NoteByID(c.Request.Context(), noteID)
	if err != nil {
		respondWithError(c, err)
		return false
	}
	if note == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    CodeNotFound,
			"message": "指定されたノートは存在しません。",
		})
		return false
	}
	return true
}

func paramAsID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    CodeInvalidInput,
			"message": fmt.Sprintf("%s には正の整数を指定してください。", name),
		})
		return 0, false
	}
	return id, true
}

func queryAsInt(c *gin.Context, name string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value < 1 {
		return defaultValue
	}
	return value
}

func respondWithError(c *gin.Context, err error) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
		status := http.StatusInternalServerError
		switch appErr.Code {
		case CodeInvalidInput, CodeMalformedContent:
			status = http.StatusBadRequest
		case CodeNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

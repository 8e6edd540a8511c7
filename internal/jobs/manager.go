package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/notes"
)

const (
	taskTypeExport = "note:export_pdf"
	exportQueue    = "notes"
)

// Exporter はPDF出力ジョブを実行できるサービスが実装します。
type Exporter interface {
	RunExport(ctx context.Context, noteID int64, report notes.ProgressReporter) (*notes.ExportResult, error)
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	exporter Exporter
	logger   *log.Logger
}

// TaskPayload はPDF出力ジョブのペイロードです。
type TaskPayload struct {
	JobID  string `json:"jobId"`
	NoteID int64  `json:"noteId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, exporter Exporter, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if exporter == nil {
		return nil, errors.New("exporter is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				exportQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		exporter: exporter,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeExport, manager.handleExportTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// EnqueueExport はノートのPDF出力ジョブをキューに投入し、ジョブIDを返します。
func (m *Manager) EnqueueExport(ctx context.Context, noteID int64) (string, error) {
	if noteID <= 0 {
		return "", fmt.Errorf("noteID is required")
	}

	payload := &TaskPayload{
		JobID:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		NoteID: noteID,
	}

	record := &Record{
		JobID:  payload.JobID,
		NoteID: noteID,
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	// 失敗したジョブは自動リトライしない。次回のエクスポート要求が新規ジョブになる
	task := asynq.NewTask(taskTypeExport, body, asynq.Queue(exportQueue))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return "", err
	}
	return payload.JobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleExportTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	// 投入時に作成済みのレコードを部分更新し、CreatedAt・ExpiresAt を引き継ぐ
	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		return err
	}

	result, err := m.exporter.RunExport(ctx, payload.NoteID, func(stage string, percent int) {
		if updateErr := m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{
			Stage:   stage,
			Percent: percent,
		}); updateErr != nil && m.logger != nil {
			m.logger.Printf("failed to update progress job=%s: %v", payload.JobID, updateErr)
		}
	})
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *notes.ExportResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	meta := struct {
		Pages  int  `json:"pages,omitempty"`
		Cached bool `json:"cached"`
	}{
		Pages:  result.Pages,
		Cached: result.Cached,
	}
	return m.store.MarkDone(ctx, jobID, notes.ArtifactMediaPath(result.ArtifactName), meta)
}

// failJobWithError は失敗をジョブ状態へ記録します。nil を返すことで
// ワーカープロセス自体は次のジョブの処理を継続できます。
func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	info := &ErrorInfo{Code: "INTERNAL_ERROR", Message: err.Error()}
	var appErr *notes.Error
	if errors.As(err, &appErr) {
		info = &ErrorInfo{Code: appErr.Code, Message: appErr.Message}
	}
	if m.logger != nil {
		m.logger.Printf("export job failed job=%s: %v", jobID, err)
	}
	return m.store.MarkFailed(ctx, jobID, info)
}

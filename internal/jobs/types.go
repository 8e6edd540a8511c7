package jobs

import "time"

// Status はジョブの実行状態を表します。キュー内部の語彙であり、
// APIへはそのまま出さず status.go の正規化を通して公開します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はPDF出力ジョブの現在状態を表します。
type Record struct {
	JobID     string       `json:"jobId"`
	NoteID    int64        `json:"noteId"`
	Status    Status       `json:"status"`
	Progress  ProgressInfo `json:"progress"`
	Result    string       `json:"result,omitempty"` // 成果物の公開URLパス
	Meta      any          `json:"meta,omitempty"`
	Error     *ErrorInfo   `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

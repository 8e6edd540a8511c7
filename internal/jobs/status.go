package jobs

// ポーリングクライアントへ公開するジョブ状態です。キューの内部語彙より
// 狭い4状態に正規化し、キュー実装を差し替え可能にしています。
const (
	PublicPending  = "PENDING"
	PublicProgress = "PROGRESS"
	PublicSuccess  = "SUCCESS"
	PublicFailure  = "FAILURE"
)

// PublicView はポーリングAPIのレスポンス形です。
type PublicView struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Result   string `json:"result,omitempty"`
}

// Normalize はジョブレコードを公開用の {status, progress, result} へ変換します。
// レコードが存在しない場合は FAILURE・進捗0 を返します。
// 初期状態や未知の状態は進捗0の PROGRESS として扱います。
func Normalize(record *Record) PublicView {
	if record == nil {
		return PublicView{Status: PublicFailure, Progress: 0}
	}

	switch record.Status {
	case StatusSucceeded:
		return PublicView{Status: PublicSuccess, Progress: 100, Result: record.Result}
	case StatusFailed:
		return PublicView{Status: PublicFailure, Progress: 0}
	case StatusRunning:
		return PublicView{Status: PublicProgress, Progress: record.Progress.Percent}
	default:
		// queued を含む初期状態・未知の状態
		return PublicView{Status: PublicProgress, Progress: 0}
	}
}

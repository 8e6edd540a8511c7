package notes

import "fmt"

// エラーコード一覧。HTTPレスポンスとジョブ失敗情報の双方で使用します。
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeSequenceError    = "SEQUENCE_ERROR"
	CodeMalformedContent = "MALFORMED_CONTENT"
	CodeNotFound         = "NOT_FOUND"
	CodeStorageError     = "STORAGE_ERROR"
)

// Error はアプリケーションエラーを表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap はラップされたエラーを返します。
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

package notes

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// WkhtmltopdfConverter は wkhtmltopdf バイナリでHTMLをPDFへ変換します。
type WkhtmltopdfConverter struct {
	path string
}

// NewWkhtmltopdfConverter はコンバーターを作成します。
func NewWkhtmltopdfConverter(path string) *WkhtmltopdfConverter {
	if path == "" {
		path = "wkhtmltopdf"
	}
	return &WkhtmltopdfConverter{path: path}
}

// Convert はHTMLを標準入力から渡し、destPath にPDFを書き出します。
func (w *WkhtmltopdfConverter) Convert(ctx context.Context, htmlDoc, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return newError(CodeStorageError, "出力ディレクトリの作成に失敗しました。", err)
	}

	args := wkhtmltopdfArgs(destPath)
	cmd := exec.CommandContext(ctx, w.path, args...)
	cmd.Stdin = strings.NewReader(htmlDoc)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return newError(CodeStorageError, fmt.Sprintf("wkhtmltopdfによる変換に失敗しました: %s", stderr.String()), err)
	}
	return nil
}

func wkhtmltopdfArgs(destPath string) []string {
	return []string{
		"--page-size", "Letter",
		"--margin-top", "0.75in",
		"--margin-right", "0.75in",
		"--margin-bottom", "0.75in",
		"--margin-left", "0.75in",
		"--encoding", "UTF-8",
		"--footer-center", "[page]",
		"--enable-local-file-access",
		"--quiet",
		"-",
		destPath,
	}
}

// verifyArtifact は生成されたPDFを検証し、ページ数を返します。
func verifyArtifact(destPath string) (int, error) {
	if err := pdfapi.ValidateFile(destPath, nil); err != nil {
		return 0, newError(CodeStorageError, "生成されたPDFの検証に失敗しました。", err)
	}
	pages, err := pdfapi.PageCountFile(destPath)
	if err != nil {
		return 0, newError(CodeStorageError, "生成されたPDFのページ数取得に失敗しました。", err)
	}
	return pages, nil
}

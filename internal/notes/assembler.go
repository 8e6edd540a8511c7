package notes

import (
	"context"
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// テンプレートの区切り文字にはユーザー本文と衝突しにくい [[ ]] を使用します。
// 本文（HTML断片）を折り込んだ後もテンプレートとして再解析するためです。
var (
	noteTemplate  = template.Must(template.New("note.html").Delims("[[", "]]").ParseFS(templateFS, "templates/note.html"))
	entryTemplate = template.Must(template.New("entry.html").Delims("[[", "]]").ParseFS(templateFS, "templates/entry.html"))
)

const entrySlotPlaceholder = "[[.EntrySlot]]"

// ユーザー由来のテキストに区切り文字が含まれていても、作業テンプレートの
// 再解析でテンプレート構文として実行されないよう文字参照へ退避します。
var delimEscaper = strings.NewReplacer("[[", "&#91;&#91;", "]]", "&#93;&#93;")

// Converter は合成済みHTMLをPDFへ変換して書き出します。
type Converter interface {
	Convert(ctx context.Context, htmlDoc, destPath string) error
}

type headerData struct {
	Title       string
	Description string
}

type assemblerState int

const (
	stateEmpty assemblerState = iota
	stateHeaderAdded
	stateRendered
)

// Assembler はノートヘッダーとエントリー断片を1つのPDFへ組み立てます。
// 文書全体を構造化データとして保持せず、エントリースロットを持つ
// 作業テンプレートへ断片を1件ずつ折り込みます。
// 1インスタンスにつき1文書です。Render 後の再利用はできません。
type Assembler struct {
	conv    Converter
	abs     func(rel string) string
	state   assemblerState
	working string
}

// NewAssembler はアセンブラを作成します。abs はメディア相対パスを
// ローカル絶対パスへ解決する関数です。
func NewAssembler(conv Converter, abs func(rel string) string) *Assembler {
	return &Assembler{conv: conv, abs: abs}
}

// AddHeader はノートのタイトルと説明から作業テンプレートを初期化します。
// 最初に1回だけ呼び出せます。
func (a *Assembler) AddHeader(note *Note) error {
	if a.state != stateEmpty {
		return newError(CodeSequenceError, "ヘッダーは既に追加されています。", nil)
	}
	if note == nil {
		return newError(CodeInvalidInput, "ノートが指定されていません。", nil)
	}

	var sb strings.Builder
	data := struct {
		Note      headerData
		EntrySlot string
	}{
		Note: headerData{
			Title:       delimEscaper.Replace(note.Title),
			Description: delimEscaper.Replace(note.Description),
		},
		// プレースホルダー自身を値として与え、スロットを生かしたまま展開する
		EntrySlot: entrySlotPlaceholder,
	}
	if err := noteTemplate.Execute(&sb, data); err != nil {
		return newError(CodeStorageError, "ヘッダーの展開に失敗しました。", err)
	}

	a.working = sb.String()
	a.state = stateHeaderAdded
	return nil
}

// AddEntry はエントリー断片を作業テンプレートへ折り込みます。
// 本文中のメディア参照は描画用にローカル絶対パスへ解決されます。
func (a *Assembler) AddEntry(entry *Entry) error {
	if a.state == stateEmpty {
		return newError(CodeSequenceError, "ヘッダーが追加されていません。", nil)
	}
	if a.state == stateRendered {
		return newError(CodeSequenceError, "描画済みのアセンブラは再利用できません。", nil)
	}
	if entry == nil {
		return newError(CodeInvalidInput, "エントリーが指定されていません。", nil)
	}

	content, err := ResolveMediaPaths(entry.Content, a.abs)
	if err != nil {
		return err
	}

	var fragment strings.Builder
	data := struct {
		Created string
		Content string
	}{
		Created: entry.Created.Format("2006-01-02 15:04"),
		Content: delimEscaper.Replace(content),
	}
	if err := entryTemplate.Execute(&fragment, data); err != nil {
		return newError(CodeStorageError, "エントリーの展開に失敗しました。", err)
	}

	// 断片の後ろに新しいスロットを続け、以降のエントリーを追記できるようにする
	working, err := a.fold(fragment.String() + "\n" + entrySlotPlaceholder)
	if err != nil {
		return err
	}
	a.working = working
	return nil
}

// Render はスロットを閉じてHTMLを確定し、PDFへ変換して destPath に書き出します。
// 呼び出せるのは1回だけです。
func (a *Assembler) Render(ctx context.Context, destPath string) error {
	if a.state == stateEmpty {
		return newError(CodeSequenceError, "ヘッダーが追加されていません。", nil)
	}
	if a.state == stateRendered {
		return newError(CodeSequenceError, "描画は既に完了しています。", nil)
	}

	finalHTML, err := a.fold("")
	if err != nil {
		return err
	}

	if err := a.conv.Convert(ctx, finalHTML, destPath); err != nil {
		return err
	}

	a.state = stateRendered
	return nil
}

// fold は現在の作業テンプレートを再解析し、スロットへ値を差し込んだ結果を返します。
func (a *Assembler) fold(slotValue string) (string, error) {
	t, err := template.New("working").Delims("[[", "]]").Parse(a.working)
	if err != nil {
		return "", newError(CodeMalformedContent, "作業テンプレートの再解析に失敗しました。", err)
	}

	var sb strings.Builder
	data := struct{ EntrySlot string }{EntrySlot: slotValue}
	if err := t.Execute(&sb, data); err != nil {
		return "", newError(CodeStorageError, "作業テンプレートの展開に失敗しました。", err)
	}
	return sb.String(), nil
}

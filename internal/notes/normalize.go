package notes

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	mediaURLPrefix = "/media/"
	imageURLPrefix = "/media/notes/img/"
)

// NewImage は正規化で発見された、保存待ちのインライン画像です。
type NewImage struct {
	Name        string // 一意なファイル名（uuid + 拡張子）
	StoragePath string // メディアルートからの相対パス
	Data        []byte // デコード済みペイロード
}

// NormalizedContent は正規化の結果です。副作用は呼び出し側が保存時に適用します。
type NormalizedContent struct {
	Content  string          // 保存可能な書き換え済み本文
	ToCreate []NewImage      // 新規に保存すべき画像
	ToDelete []EmbeddedImage // 参照されなくなった画像
}

// NormalizeContent はエントリー本文を走査し、base64インライン画像を外部参照へ
// 書き換えます。既存画像のうち本文から参照されなくなったものは ToDelete に
// 含まれ、レコードに解決できない外部参照は本文から取り除かれます。
// 保存後の画像セットと本文中の外部参照セットは常に一致します。
func NormalizeContent(content string, existing []EmbeddedImage, now time.Time) (*NormalizedContent, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return nil, newError(CodeMalformedContent, "本文の解析に失敗しました。", err)
	}

	result := &NormalizedContent{}
	referenced := make(map[string]bool)
	dangling := make(map[*html.Node]bool)

	byName := make(map[string]EmbeddedImage, len(existing))
	for _, img := range existing {
		byName[img.Name] = img
	}

	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			keep, err := normalizeImageNode(n, byName, referenced, result, now)
			if err != nil {
				return err
			}
			if !keep {
				dangling[n] = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if err := walk(n); err != nil {
			return nil, err
		}
	}

	// 参照されなくなった既存画像を削除対象にする
	for _, img := range existing {
		if !referenced[img.Name] {
			result.ToDelete = append(result.ToDelete, img)
		}
	}

	result.Content = renderFragment(pruneNodes(nodes, dangling))
	return result, nil
}

// normalizeImageNode は img ノードを1つ処理します。戻り値 keep が false の
// ノードは保存内容から取り除かれます。
func normalizeImageNode(n *html.Node, byName map[string]EmbeddedImage, referenced map[string]bool, result *NormalizedContent, now time.Time) (bool, error) {
	src := getAttr(n, "src")
	switch {
	case strings.HasPrefix(src, "data:image/"):
		img, err := decodeInlineImage(src, now)
		if err != nil {
			return false, err
		}
		result.ToCreate = append(result.ToCreate, *img)
		referenced[img.Name] = true
		setAttr(n, "src", mediaURLPrefix+img.StoragePath)
		// クライアント側が保存済み画像を追跡できるよう、生成名をidとして刻む
		setAttr(n, "id", img.Name)

	case strings.HasPrefix(src, imageURLPrefix):
		name := path.Base(src)
		if _, ok := byName[name]; !ok {
			// 削除済み・他エントリー所有など、解決できない参照は残さない
			return false, nil
		}
		referenced[name] = true
	}
	return true, nil
}

// pruneNodes は取り除き対象のノードをツリーと最上位リストから外します。
func pruneNodes(nodes []*html.Node, drop map[*html.Node]bool) []*html.Node {
	if len(drop) == 0 {
		return nodes
	}
	kept := nodes[:0]
	for _, n := range nodes {
		if drop[n] {
			continue
		}
		kept = append(kept, n)
	}
	for n := range drop {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return kept
}

// decodeInlineImage は data URI をデコードし、保存先を割り当てます。
// デコードできないペイロードは保存全体を失敗させます。
func decodeInlineImage(src string, now time.Time) (*NewImage, error) {
	idx := strings.Index(src, ";base64,")
	if idx < 0 {
		return nil, newError(CodeMalformedContent, "インライン画像の形式が正しくありません。", nil)
	}
	payload := strings.TrimSpace(src[idx+len(";base64,"):])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, newError(CodeMalformedContent, "インライン画像のデコードに失敗しました。", err)
	}
	if len(data) == 0 {
		return nil, newError(CodeMalformedContent, "インライン画像が空です。", nil)
	}

	ext := ".png"
	if detected := mimetype.Detect(data); strings.HasPrefix(detected.String(), "image/") {
		ext = detected.Extension()
	}

	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	rel := fmt.Sprintf("notes/img/%04d/%02d/%02d/%s", now.Year(), int(now.Month()), now.Day(), name)
	return &NewImage{Name: name, StoragePath: rel, Data: data}, nil
}

// ResolveMediaPaths は本文中の /media/... 参照をローカルの絶対パスへ書き換えます。
// PDF描画時にストレージ配置とプレゼンテーションを切り離すために使用します。
func ResolveMediaPaths(content string, abs func(rel string) string) (string, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return "", newError(CodeMalformedContent, "本文の解析に失敗しました。", err)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if src := getAttr(n, "src"); strings.HasPrefix(src, mediaURLPrefix) {
				setAttr(n, "src", abs(strings.TrimPrefix(src, mediaURLPrefix)))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	return renderFragment(nodes), nil
}

func parseFragment(content string) ([]*html.Node, error) {
	body := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	return html.ParseFragment(strings.NewReader(content), body)
}

func renderFragment(nodes []*html.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		_ = html.Render(&sb, n)
	}
	return sb.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

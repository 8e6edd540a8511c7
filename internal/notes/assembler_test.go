package notes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type captureConverter struct {
	html  string
	dest  string
	calls int
	err   error
}

func (c *captureConverter) Convert(ctx context.Context, htmlDoc, destPath string) error {
	c.calls++
	c.html = htmlDoc
	c.dest = destPath
	return c.err
}

func identityAbs(rel string) string { return "/srv/media/" + rel }

func assertSequenceError(t *testing.T, err error) {
	t.Helper()
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Code != CodeSequenceError {
		t.Fatalf("expected sequence error, got: %v", err)
	}
}

func TestAssemblerComposesEntriesInOrder(t *testing.T) {
	conv := &captureConverter{}
	asm := NewAssembler(conv, identityAbs)

	note := &Note{Title: "Field Notes", Description: "Observations from May"}
	if err := asm.AddHeader(note); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}

	created := time.Date(2024, 5, 7, 9, 30, 0, 0, time.UTC)
	entries := []Entry{
		{Content: "<p>first entry</p>", Created: created},
		{Content: "<p>second entry</p>", Created: created.Add(time.Hour)},
	}
	for i := range entries {
		if err := asm.AddEntry(&entries[i]); err != nil {
			t.Fatalf("AddEntry(%d) returned error: %v", i, err)
		}
	}

	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if conv.calls != 1 {
		t.Fatalf("expected 1 conversion, got %d", conv.calls)
	}
	if conv.dest != "/tmp/out.pdf" {
		t.Fatalf("unexpected destination: %s", conv.dest)
	}
	if !strings.Contains(conv.html, "Field Notes") || !strings.Contains(conv.html, "Observations from May") {
		t.Fatalf("header missing from document: %s", conv.html)
	}

	first := strings.Index(conv.html, "first entry")
	second := strings.Index(conv.html, "second entry")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("entries missing or out of order: first=%d second=%d", first, second)
	}
	if strings.Contains(conv.html, "[[") {
		t.Fatalf("unfolded slot left in document: %s", conv.html)
	}
}

func TestAssemblerResolvesMediaReferences(t *testing.T) {
	conv := &captureConverter{}
	asm := NewAssembler(conv, identityAbs)

	if err := asm.AddHeader(&Note{Title: "t"}); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}
	entry := &Entry{
		Content: `<p><img src="/media/notes/img/2024/05/07/a.png"></p>`,
		Created: time.Now(),
	}
	if err := asm.AddEntry(entry); err != nil {
		t.Fatalf("AddEntry returned error: %v", err)
	}
	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !strings.Contains(conv.html, `src="/srv/media/notes/img/2024/05/07/a.png"`) {
		t.Fatalf("media reference not resolved for rendering: %s", conv.html)
	}
}

func TestAssemblerKeepsDelimiterSequencesLiteral(t *testing.T) {
	conv := &captureConverter{}
	asm := NewAssembler(conv, identityAbs)

	if err := asm.AddHeader(&Note{Title: "index [[0]]", Description: "d"}); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}
	entries := []Entry{
		{Content: "<p>array[[0]] syntax</p>", Created: time.Now()},
		{Content: "<p>closing ]] bracket</p>", Created: time.Now()},
	}
	for i := range entries {
		if err := asm.AddEntry(&entries[i]); err != nil {
			t.Fatalf("AddEntry(%d) returned error: %v", i, err)
		}
	}
	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	// 本文中の区切り文字はテンプレート構文として実行されず、文字参照で残る
	if strings.Contains(conv.html, "array0") {
		t.Fatalf("delimiter sequence was executed as a template action: %s", conv.html)
	}
	if !strings.Contains(conv.html, "array&#91;&#91;0&#93;&#93; syntax") {
		t.Fatalf("entry delimiter sequence not preserved: %s", conv.html)
	}
	if !strings.Contains(conv.html, "index &#91;&#91;0&#93;&#93;") {
		t.Fatalf("header delimiter sequence not preserved: %s", conv.html)
	}
	if !strings.Contains(conv.html, "closing &#93;&#93; bracket") {
		t.Fatalf("bare closing delimiter not preserved: %s", conv.html)
	}
}

func TestAssemblerEnforcesCallOrder(t *testing.T) {
	conv := &captureConverter{}
	entry := &Entry{Content: "<p>x</p>", Created: time.Now()}

	asm := NewAssembler(conv, identityAbs)
	assertSequenceError(t, asm.AddEntry(entry))
	assertSequenceError(t, asm.Render(context.Background(), "/tmp/out.pdf"))

	if err := asm.AddHeader(&Note{Title: "t"}); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}
	assertSequenceError(t, asm.AddHeader(&Note{Title: "t"}))
}

func TestAssemblerSingleUse(t *testing.T) {
	conv := &captureConverter{}
	asm := NewAssembler(conv, identityAbs)

	if err := asm.AddHeader(&Note{Title: "t"}); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}
	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	assertSequenceError(t, asm.Render(context.Background(), "/tmp/out.pdf"))
	assertSequenceError(t, asm.AddEntry(&Entry{Content: "<p>x</p>", Created: time.Now()}))
	if conv.calls != 1 {
		t.Fatalf("expected 1 conversion, got %d", conv.calls)
	}
}

func TestAssemblerConversionFailureKeepsState(t *testing.T) {
	conv := &captureConverter{err: errors.New("wkhtmltopdf exited")}
	asm := NewAssembler(conv, identityAbs)

	if err := asm.AddHeader(&Note{Title: "t"}); err != nil {
		t.Fatalf("AddHeader returned error: %v", err)
	}
	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err == nil {
		t.Fatal("expected conversion error")
	}

	// 変換失敗はアセンブラを消費しない。リトライできる
	conv.err = nil
	if err := asm.Render(context.Background(), "/tmp/out.pdf"); err != nil {
		t.Fatalf("retry after failure returned error: %v", err)
	}
}

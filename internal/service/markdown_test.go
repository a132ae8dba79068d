package service

import (
	"strings"
	"testing"
)

func TestRenderNoteHTML(t *testing.T) {
	if got := RenderNoteHTML("   "); got != "" {
		t.Fatalf("expected empty output for blank input, got %q", got)
	}

	got := RenderNoteHTML("**今天状态不错**")
	if !strings.Contains(got, "<strong>") {
		t.Fatalf("expected bold markup, got %q", got)
	}
}

func TestRenderNoteHTMLSanitizesScripts(t *testing.T) {
	got := RenderNoteHTML("完成 <script>alert('x')</script> 训练")
	if strings.Contains(got, "<script>") {
		t.Fatalf("expected script tags to be stripped, got %q", got)
	}
}

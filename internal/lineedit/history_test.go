package lineedit

import "testing"

func submitLines(h *History, lines ...string) {
	for _, l := range lines {
		h.Begin()
		h.Append(l)
		h.Submit(false)
	}
}

func TestHistory_NavigationIsBounded(t *testing.T) {
	h := NewHistory(true)
	submitLines(h, "one", "two")
	h.Begin()
	for i := 0; i < 5; i++ {
		h.Navigate(Older)
	}
	if h.Pos() != 2 || h.Text() != "one" {
		t.Fatalf("expected oldest slot 2 %q, got %d %q", "one", h.Pos(), h.Text())
	}
	if h.Cursor() != 3 {
		t.Fatalf("cursor should sit at end of recalled line, got %d", h.Cursor())
	}
	for i := 0; i < 5; i++ {
		h.Navigate(Newer)
	}
	if h.Pos() != 0 || h.Text() != "" {
		t.Fatalf("expected empty live slot, got %d %q", h.Pos(), h.Text())
	}
}

func TestHistory_NewerKeepsScratchContent(t *testing.T) {
	h := NewHistory(true)
	submitLines(h, "one")
	h.Begin()
	h.Append("draft")
	h.Navigate(Older)
	h.Navigate(Newer)
	if h.Text() != "draft" {
		t.Fatalf("scratch slot lost its text: %q", h.Text())
	}
}

func TestHistory_LiveBlanksScratch(t *testing.T) {
	h := NewHistory(true)
	submitLines(h, "one")
	h.Begin()
	h.Append("draft")
	h.Navigate(Older)
	h.Navigate(Live)
	if h.Pos() != 0 || h.Text() != "" || h.Cursor() != 0 {
		t.Fatalf("expected blank live slot, got %d %q %d", h.Pos(), h.Text(), h.Cursor())
	}
}

func TestHistory_EditingRecalledLineInPlace(t *testing.T) {
	h := NewHistory(true)
	submitLines(h, "one", "two")
	h.Begin()
	h.Navigate(Older)
	h.Append("x")
	h.Navigate(Live)
	h.Append("z")
	if _, ok := h.Submit(false); !ok {
		t.Fatal("submit refused")
	}
	want := []string{"z", "twox", "one"}
	if got := h.Entries(); !equalUnits(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHistory_EditingRecalledLineWithOverlay(t *testing.T) {
	h := NewHistory(false)
	submitLines(h, "one", "two")
	h.Begin()
	h.Navigate(Older)
	h.Append("x")
	if h.Text() != "twox" {
		t.Fatalf("overlay edit not visible: %q", h.Text())
	}
	h.Navigate(Live)
	h.Append("z")
	h.Submit(false)
	want := []string{"z", "two", "one"}
	if got := h.Entries(); !equalUnits(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHistory_EmptySubmitLeavesStateUntouched(t *testing.T) {
	h := NewHistory(true)
	submitLines(h, "one")
	h.Begin()
	h.Append("   ")
	beforeLen, beforePos, beforeCursor := h.Len(), h.Pos(), h.Cursor()
	if _, ok := h.Submit(false); ok {
		t.Fatal("blank line should not submit")
	}
	if h.Len() != beforeLen || h.Pos() != beforePos || h.Cursor() != beforeCursor {
		t.Fatalf("state changed: len %d->%d pos %d->%d cursor %d->%d",
			beforeLen, h.Len(), beforePos, h.Pos(), beforeCursor, h.Cursor())
	}
}

func TestHistory_EmptySubmitAllowedIsNotRecorded(t *testing.T) {
	h := NewHistory(true)
	h.Begin()
	line, ok := h.Submit(true)
	if !ok || line != "" {
		t.Fatalf("expected empty submission, got %q %v", line, ok)
	}
	if h.Len() != 0 {
		t.Fatalf("empty line recorded: %q", h.Entries())
	}
}

func TestHistory_BackspaceAtColumnZero(t *testing.T) {
	h := NewHistory(true)
	h.Begin()
	if h.Backspace() {
		t.Fatal("backspace on empty line should be a no-op")
	}
	h.Append("hé")
	h.Backspace()
	if h.Text() != "h" || h.Cursor() != 1 {
		t.Fatalf("got %q cursor %d", h.Text(), h.Cursor())
	}
}

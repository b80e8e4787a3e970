package display

import (
	"bytes"
	"testing"
)

func TestLatest_CopiesFrame(t *testing.T) {
	l := NewLatest()

	if _, _, pix := l.Snapshot(); pix != nil {
		t.Fatal("Expected nil snapshot before first publish")
	}

	src := []byte{1, 2, 3, 4, 5, 6}
	l.Publish(2, 1, src)
	src[0] = 99

	w, h, pix := l.Snapshot()
	if w != 2 || h != 1 {
		t.Errorf("Expected 2x1, got %dx%d", w, h)
	}
	if !bytes.Equal(pix, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Expected published pixels to be copied, got %v", pix)
	}

	pix[1] = 42
	if _, _, again := l.Snapshot(); again[1] != 2 {
		t.Error("Expected snapshot to be a copy")
	}
}

func TestLatest_Info(t *testing.T) {
	l := NewLatest()
	l.Publish(1, 1, []byte{0, 0, 0})
	l.Publish(1, 1, []byte{1, 1, 1})

	info := l.Info()
	if info.Frames != 2 {
		t.Errorf("Expected 2 frames, got %d", info.Frames)
	}
	if info.Width != 1 || info.Height != 1 {
		t.Errorf("Expected 1x1, got %dx%d", info.Width, info.Height)
	}
	if info.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestTee(t *testing.T) {
	var order []string
	a := SinkFunc(func(w, h int, _ []byte) { order = append(order, "a") })
	b := SinkFunc(func(w, h int, _ []byte) { order = append(order, "b") })

	tee := NewTee(a, nil, b)
	if len(tee) != 2 {
		t.Fatalf("Expected nil sink skipped, got %d sinks", len(tee))
	}

	tee.Publish(1, 1, []byte{0, 0, 0})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("Expected publish order [a b], got %v", order)
	}

	Discard.Publish(1, 1, nil)
}

package guardian

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	logx "nightguard/pkg/logx"
)

func newLog(t *testing.T, initial string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "latest.log")
	if err := os.WriteFile(p, []byte(initial), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func appendLog(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func mustTailer(t *testing.T, path, enc string) *Tailer {
	t.Helper()
	tl, err := NewTailer(path, enc, logx.Nop())
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	return tl
}

func TestTailerSeekEndSkipsHistory(t *testing.T) {
	t.Parallel()
	p := newLog(t, "<old> exit\n")
	tl := mustTailer(t, p, "")
	if err := tl.SeekEnd(); err != nil {
		t.Fatalf("SeekEnd: %v", err)
	}
	lines, err := tl.Poll()
	if err != nil || len(lines) != 0 {
		t.Fatalf("Poll after SeekEnd = %v, %v", lines, err)
	}

	appendLog(t, p, "<Allotron> delay\r\n<nikita> hi\n")
	lines, err = tl.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	want := []string{"<Allotron> delay", "<nikita> hi"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	lines, _ = tl.Poll()
	if len(lines) != 0 {
		t.Fatalf("unchanged file yielded %q", lines)
	}
}

func TestTailerTruncationRereadsFromStart(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")
	appendLog(t, p, "<a> one\n<a> two\n<a> three\n")
	if lines, _ := tl.Poll(); len(lines) != 3 {
		t.Fatalf("first poll = %q", lines)
	}

	// Rotation: the file is replaced by a shorter one.
	if err := os.WriteFile(p, []byte("<b> fresh\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	lines, err := tl.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"<b> fresh"}) {
		t.Fatalf("after truncation = %q", lines)
	}
	if tl.offset != int64(len("<b> fresh\n")) {
		t.Fatalf("offset = %d", tl.offset)
	}
}

func TestTailerReplacedFileRereadsFromStart(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")
	appendLog(t, p, "<a> one\n")
	if lines, _ := tl.Poll(); !reflect.DeepEqual(lines, []string{"<a> one"}) {
		t.Fatalf("first poll = %q", lines)
	}

	// The new file is already longer than the old offset.
	next := filepath.Join(filepath.Dir(p), "latest.log.new")
	if err := os.WriteFile(next, []byte("<Allotron> exit\n<b> hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(next, p); err != nil {
		t.Fatalf("rename: %v", err)
	}
	lines, err := tl.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	want := []string{"<Allotron> exit", "<b> hello"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("after rotation = %q, want %q", lines, want)
	}
}

func TestTailerBuffersPartialLine(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")

	appendLog(t, p, "<Allotron> ex")
	if lines, _ := tl.Poll(); len(lines) != 0 {
		t.Fatalf("partial line emitted: %q", lines)
	}
	appendLog(t, p, "it\n<nik")
	lines, _ := tl.Poll()
	if !reflect.DeepEqual(lines, []string{"<Allotron> exit"}) {
		t.Fatalf("lines = %q", lines)
	}
}

func TestTailerDropsInvalidUTF8(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")
	appendLog(t, p, "<Allo\xfftron> del\xc3ay\n")
	lines, err := tl.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"<Allotron> delay"}) {
		t.Fatalf("lines = %q", lines)
	}
}

func TestTailerDecodesLegacyEncoding(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "windows-1251")
	raw, err := charmap.Windows1251.NewEncoder().String("<Никита> отмена\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	appendLog(t, p, raw)
	lines, err := tl.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"<Никита> отмена"}) {
		t.Fatalf("lines = %q", lines)
	}
}

func TestTailerBoundedPoll(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")
	tl.maxRead = 8
	appendLog(t, p, "<a> 1\n<b> 2\n")

	first, _ := tl.Poll()
	second, _ := tl.Poll()
	got := append(first, second...)
	if !reflect.DeepEqual(got, []string{"<a> 1", "<b> 2"}) {
		t.Fatalf("lines across polls = %q", got)
	}
}

func TestTailerErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewTailer("", "", logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := NewTailer("x.log", "klingon", logx.Nop()); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
	for _, label := range []string{"utf-16le", "utf-16be", "UTF-16"} {
		if _, err := NewTailer("x.log", label, logx.Nop()); err == nil {
			t.Errorf("expected error for %s", label)
		}
	}
	tl := mustTailer(t, filepath.Join(t.TempDir(), "missing.log"), "utf-8")
	if _, err := tl.Poll(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTailerWatchWakes(t *testing.T) {
	t.Parallel()
	p := newLog(t, "")
	tl := mustTailer(t, p, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wake := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- tl.Watch(ctx, wake) }()

	// The watcher registers asynchronously; keep writing until it reports.
	deadline := time.After(5 * time.Second)
	for {
		appendLog(t, p, "<a> ping\n")
		select {
		case <-wake:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("no wake-up after writes")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

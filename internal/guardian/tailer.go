package guardian

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	logx "nightguard/pkg/logx"
)

// maxPollBytes bounds a single Poll so one tick never stalls on a huge
// backlog; the remainder is picked up by the following ticks.
const maxPollBytes = 4 << 20

// Tailer yields lines appended to a file since the previous Poll. It keeps a
// byte offset and buffers a trailing line until its newline arrives.
//
// Not safe for concurrent use.
type Tailer struct {
	path    string
	enc     encoding.Encoding // nil: UTF-8
	maxRead int64
	log     logx.Logger

	offset  int64
	partial []byte
	info    os.FileInfo // identity of the file the offset refers to
}

// NewTailer creates a tailer for path. encodingLabel is any WHATWG label
// ("utf-8", "windows-1251", "koi8-r", ...); empty means UTF-8.
func NewTailer(path, encodingLabel string, log logx.Logger) (*Tailer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("guardian: log path is required")
	}
	enc, err := resolveEncoding(encodingLabel)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tailer{path: path, enc: enc, maxRead: maxPollBytes, log: log}, nil
}

func resolveEncoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("guardian: unsupported log encoding %q: %w", label, err)
	}
	switch name, _ := htmlindex.Name(enc); name {
	case "utf-8":
		return nil, nil
	case "utf-16le", "utf-16be", "replacement":
		// Lines are split on the '\n' byte before decoding.
		return nil, fmt.Errorf("guardian: log encoding %q is not byte-oriented", label)
	}
	return enc, nil
}

func (t *Tailer) Path() string { return t.path }

// SeekEnd skips everything already in the file so history is not replayed.
func (t *Tailer) SeekEnd() error {
	st, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	t.offset = st.Size()
	t.partial = nil
	t.info = st
	return nil
}

// Poll returns the complete lines appended since the last call. An
// unchanged size yields nothing. A replaced file (rotation) or one smaller
// than the offset (truncation) is re-read from the start.
func (t *Tailer) Poll() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if t.info != nil && !os.SameFile(t.info, st) {
		t.log.Info("log source replaced, reading from start",
			logx.String("path", t.path),
			logx.Int64("offset", t.offset),
			logx.Int64("size", size),
		)
		t.offset = 0
		t.partial = nil
	}
	t.info = st
	if size == t.offset {
		return nil, nil
	}
	if size < t.offset {
		t.log.Info("log source shrank, reading from start",
			logx.String("path", t.path),
			logx.Int64("offset", t.offset),
			logx.Int64("size", size),
		)
		t.offset = 0
		t.partial = nil
	}

	n := size - t.offset
	if n > t.maxRead {
		n = t.maxRead
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	t.offset += int64(m)

	data := append(t.partial, buf[:m]...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		t.partial = data
		if int64(len(t.partial)) >= t.maxRead {
			// A "line" this long is not chat; flush it rather than grow forever.
			line := t.decode(t.partial)
			t.partial = nil
			return []string{line}, nil
		}
		return nil, nil
	}
	t.partial = append([]byte(nil), data[last+1:]...)

	raw := bytes.Split(data[:last], []byte{'\n'})
	lines := make([]string, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSuffix(r, []byte{'\r'})
		if len(r) == 0 {
			continue
		}
		lines = append(lines, t.decode(r))
	}
	return lines, nil
}

// decode is best effort: bytes that do not decode are dropped.
func (t *Tailer) decode(b []byte) string {
	if t.enc != nil {
		if out, err := t.enc.NewDecoder().Bytes(b); err == nil {
			b = out
		}
	}
	return strings.ToValidUTF8(string(b), "")
}

// Watch sends on wake (without blocking) whenever the log file is written,
// created or renamed, so the controller can run a tick early. The directory
// is watched so rotation is seen too. It returns when ctx is done.
func (t *Tailer) Watch(ctx context.Context, wake chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(t.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(t.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("log watch error", logx.String("path", t.path), logx.Err(err))
		}
	}
}

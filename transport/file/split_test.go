package file_test

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vpbank/snmp_trapmap/transport/file"
)

const (
	mappedJSON       = `{"timestamp":"2024-06-01T12:00:00Z","type_id":"fake_trap","source":"192.0.2.17","object":{"uptime":5}}`
	unregisteredJSON = `{"timestamp":"2024-06-01T12:00:00Z","source":"192.0.2.99","unregistered_trap":{"trap_info":{"trap_oid":"1.3.6.1.6.3.1.1.5.3"}}}`
)

func newSplitBufs(t *testing.T) (*bytes.Buffer, *bytes.Buffer, *file.SplitWriterTransport) {
	t.Helper()
	var events, unregistered bytes.Buffer
	tr := file.NewSplit(file.SplitConfig{
		EventWriter:        &events,
		UnregisteredWriter: &unregistered,
	}, nil)
	return &events, &unregistered, tr
}

// ─────────────────────────────────────────────────────────────────────────────
// Routing
// ─────────────────────────────────────────────────────────────────────────────

func TestSplit_MappedRouting(t *testing.T) {
	events, unregistered, tr := newSplitBufs(t)

	if err := tr.Send([]byte(mappedJSON)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if events.String() != mappedJSON+"\n" {
		t.Errorf("events = %q", events.String())
	}
	if unregistered.Len() != 0 {
		t.Errorf("unregistered writer should be empty, got %q", unregistered.String())
	}
}

func TestSplit_UnregisteredRouting(t *testing.T) {
	events, unregistered, tr := newSplitBufs(t)

	if err := tr.Send([]byte(unregisteredJSON)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if unregistered.String() != unregisteredJSON+"\n" {
		t.Errorf("unregistered = %q", unregistered.String())
	}
	if events.Len() != 0 {
		t.Errorf("event writer should be empty, got %q", events.String())
	}
}

func TestSplit_MixedMessages(t *testing.T) {
	events, unregistered, tr := newSplitBufs(t)

	for i := 0; i < 3; i++ {
		_ = tr.Send([]byte(mappedJSON))
	}
	for i := 0; i < 2; i++ {
		_ = tr.Send([]byte(unregisteredJSON))
	}

	if n := strings.Count(events.String(), "\n"); n != 3 {
		t.Errorf("event lines = %d, want 3", n)
	}
	if n := strings.Count(unregistered.String(), "\n"); n != 2 {
		t.Errorf("unregistered lines = %d, want 2", n)
	}
	e, u := tr.Sent()
	if e != 3 || u != 2 {
		t.Errorf("Sent = (%d, %d), want (3, 2)", e, u)
	}
}

func TestSplit_ConcurrentSafe(t *testing.T) {
	events, unregistered, tr := newSplitBufs(t)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = tr.Send([]byte(mappedJSON))
		}()
		go func() {
			defer wg.Done()
			_ = tr.Send([]byte(unregisteredJSON))
		}()
	}
	wg.Wait()

	for _, l := range strings.Split(strings.TrimRight(events.String(), "\n"), "\n") {
		if l != mappedJSON {
			t.Fatalf("interleaved event line: %q", l)
		}
	}
	if c := strings.Count(unregistered.String(), "\n"); c != n {
		t.Errorf("unregistered lines = %d, want %d", c, n)
	}
}

func TestSplit_CloseReturnsNil_ForBuffers(t *testing.T) {
	_, _, tr := newSplitBufs(t)
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSplit_ErrorOnFailingWriter(t *testing.T) {
	var events bytes.Buffer
	tr := file.NewSplit(file.SplitConfig{
		EventWriter:        &events,
		UnregisteredWriter: errWriter{},
	}, nil)

	if err := tr.Send([]byte(mappedJSON)); err != nil {
		t.Errorf("mapped Send: %v", err)
	}
	if err := tr.Send([]byte(unregisteredJSON)); !errors.Is(err, errSimulated) {
		t.Errorf("unregistered Send error = %v, want simulated write error", err)
	}
}

var _ file.Transport = (*file.SplitWriterTransport)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// RotatingFile
// ─────────────────────────────────────────────────────────────────────────────

func TestRotatingFile_BasicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	rf, err := file.NewRotatingFile(file.RotateConfig{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	data := []byte("hello world\n")
	n, err := rf.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	content, _ := os.ReadFile(path)
	if string(content) != "hello world\n" {
		t.Errorf("file content = %q, want %q", content, "hello world\n")
	}
}

func TestRotatingFile_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rf, err := file.NewRotatingFile(file.RotateConfig{FilePath: path, MaxBytes: 1 << 20}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	_, _ = rf.Write([]byte("new\n"))
	_ = rf.Close()

	content, _ := os.ReadFile(path)
	if string(content) != "old\nnew\n" {
		t.Errorf("file content = %q", content)
	}
}

func TestRotatingFile_RotatesOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   path,
		MaxBytes:   50,
		MaxBackups: 3,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	msg := []byte("12345678901234567890123456\n") // 27 bytes
	for i := 0; i < 4; i++ {
		if _, err := rf.Write(msg); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// Each write after the first overflows 50 bytes.
	if rf.Rotations() != 3 {
		t.Errorf("Rotations = %d, want 3", rf.Rotations())
	}
	for _, p := range []string{path, path + ".1", path + ".2", path + ".3"} {
		content, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if string(content) != string(msg) {
			t.Errorf("%s = %q, want one record", p, content)
		}
	}
}

func TestRotatingFile_PrunesOldBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   path,
		MaxBytes:   20,
		MaxBackups: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	msg := []byte("12345678901234567890\n") // 21 bytes
	for i := 0; i < 5; i++ {
		if _, err := rf.Write(msg); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("backup .1 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("backup .2 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 should have been pruned")
	}
}

func TestRotatingFile_Errors(t *testing.T) {
	if _, err := file.NewRotatingFile(file.RotateConfig{}, nil); err == nil {
		t.Error("expected error for empty FilePath")
	}
	path := filepath.Join(t.TempDir(), "events.json")
	if _, err := file.NewRotatingFile(file.RotateConfig{FilePath: path, MaxBackups: -1}, nil); err == nil {
		t.Error("expected error for negative MaxBackups")
	}

	rf, err := file.NewRotatingFile(file.RotateConfig{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rf.Write([]byte("late\n")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}
	if err := rf.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRotatingFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "events.json")

	rf, err := file.NewRotatingFile(file.RotateConfig{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("ok\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport + RotatingFile integration
// ─────────────────────────────────────────────────────────────────────────────

func TestSplit_WithRotatingFiles(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "events.json")
	unregPath := filepath.Join(dir, "unregistered.json")

	erf, err := file.NewRotatingFile(file.RotateConfig{FilePath: eventPath, MaxBytes: 500, MaxBackups: 2}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile (events): %v", err)
	}
	urf, err := file.NewRotatingFile(file.RotateConfig{FilePath: unregPath, MaxBytes: 500, MaxBackups: 2}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile (unregistered): %v", err)
	}

	tr := file.NewSplit(file.SplitConfig{EventWriter: erf, UnregisteredWriter: urf}, nil)
	for i := 0; i < 20; i++ {
		_ = tr.Send([]byte(mappedJSON))
		_ = tr.Send([]byte(unregisteredJSON))
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Every line in every file is a whole record of the right kind.
	for _, c := range []struct {
		path string
		want string
	}{
		{eventPath, mappedJSON},
		{eventPath + ".1", mappedJSON},
		{unregPath, unregisteredJSON},
		{unregPath + ".1", unregisteredJSON},
	} {
		f, err := os.Open(c.path)
		if err != nil {
			t.Fatalf("open %s: %v", c.path, err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if sc.Text() != c.want {
				t.Errorf("%s: unexpected line %q", c.path, sc.Text())
			}
		}
		_ = f.Close()
	}
	if _, err := os.Stat(eventPath + ".3"); !os.IsNotExist(err) {
		t.Error("events backup .3 should have been pruned")
	}
}

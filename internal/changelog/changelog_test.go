package changelog

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.log")
	records := []Record{
		{Message: "  Updated member  ", FileID: "src/main.c", Context: "/ws/job/project.pj"},
		{Message: "Dropped member, was out of scope", FileID: "docs/a,b.txt", Context: "/ws/job/docs/project.pj"},
		{Message: "", FileID: "empty.txt", Context: ""},
		{Message: "Übernommen: ünïcödé", FileID: "i18n/ü.txt", Context: "/ws/job/project.pj"},
	}

	if err := Write(path, records); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := make([]Record, len(records))
	for i, r := range records {
		r.Message = strings.TrimSpace(r.Message)
		want[i] = r
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestWriteFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.log")
	err := Write(path, []Record{
		{Message: " Resynced ", FileID: "a.txt", Context: "/ws/project.pj"},
		{Message: "Resynced", FileID: "b.txt", Context: "/ws/project.pj"},
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "msg:Resynced,file:a.txt,context:/ws/project.pj" + LineTerminator +
		"msg:Resynced,file:b.txt,context:/ws/project.pj" + LineTerminator
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}

func TestWriteTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.log")
	if err := os.WriteFile(path, []byte("stale content that is longer than the new log\nsecond stale line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, []Record{{Message: "m", FileID: "f", Context: "c"}}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "msg:m,file:f,context:c" + LineTerminator; string(data) != want {
		t.Errorf("change log = %q, want %q", data, want)
	}

	if err := Write(path, nil); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); len(data) != 0 {
		t.Errorf("expected empty change log, got %q", data)
	}
}

func TestWriteThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.log")
	link := filepath.Join(dir, "changes.log")
	if err := os.WriteFile(target, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	records := []Record{{Message: "Resynced", FileID: "a.txt", Context: "/ws/project.pj"}}
	if err := Write(link, records); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("change log symlink was replaced")
	}
	got, err := Read(target)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("symlink target = %+v, want %+v", got, records)
	}
}

func TestWriteKeepsExistingMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.log")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, []Record{{FileID: "a"}}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestWriteUnwritableDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "changes.log")
	if err := Write(path, []Record{{FileID: "a"}}); err == nil {
		t.Error("expected error for missing directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no change log should exist, stat err = %v", err)
	}
}

func TestDecode(t *testing.T) {
	input := "msg:a,file:1,context:x\r\n\nmsg:b,file:2,context:y\n"
	got, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []Record{
		{Message: "a", FileID: "1", Context: "x"},
		{Message: "b", FileID: "2", Context: "y"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %+v, want %+v", got, want)
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"file:a,context:b",
		"msg:a,file:b",
		"msg:a,context:b",
	} {
		if _, err := ParseLine(line); err == nil {
			t.Errorf("ParseLine(%q) should fail", line)
		}
	}
}

func TestDecodeReportsLineNumber(t *testing.T) {
	_, err := Decode(strings.NewReader("msg:a,file:1,context:x\ngarbage\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []Record{{Message: "m", FileID: "f", Context: "c"}}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "msg:m,file:f,context:c"+LineTerminator {
		t.Errorf("Encode = %q", got)
	}
}

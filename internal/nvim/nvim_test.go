package nvim

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBufferLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "a\nb\n", want: []string{"a", "b"}},
		{in: "a\nb", want: []string{"a", "b"}},
		{in: "", want: []string{""}},
		{in: "\n\n", want: []string{"", ""}},
	}
	for _, tt := range tests {
		lines := bufferLines([]byte(tt.in))
		got := make([]string, len(lines))
		for i, l := range lines {
			got[i] = string(l)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("bufferLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapePath(t *testing.T) {
	if got := escapePath("/tmp/my dir/a#b.go"); got != `/tmp/my\ dir/a\#b.go` {
		t.Errorf("escapePath = %q", got)
	}
}

func TestWriteFileThroughHeadlessNvim(t *testing.T) {
	if _, err := exec.LookPath("nvim"); err != nil {
		t.Skip("nvim not installed")
	}
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	t.Setenv("HOME", t.TempDir())

	m, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := m.WriteFile(path, []byte("hello\nworld\n")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("file = %q", data)
	}

	if err := m.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove")
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "visedit.log")
	log, err := New("debug", path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Named("commit").Debug("batch sent")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"logger":"commit"`) || !strings.Contains(string(b), `"msg":"batch sent"`) {
		t.Fatalf("log output: %s", b)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("loud", ""); err == nil {
		t.Fatalf("expected error")
	}
}

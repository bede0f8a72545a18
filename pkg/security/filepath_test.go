package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSecretFile(t *testing.T) {
	dir := t.TempDir()
	keytab := filepath.Join(dir, "svc.keytab")
	if err := os.WriteFile(keytab, []byte{0x05, 0x02}, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "regular file", path: keytab},
		{name: "empty", path: " ", wantErr: ErrInvalidPath},
		{name: "traversal", path: filepath.Join(dir, "..", "svc.keytab"), wantErr: ErrPathTraversal},
		{name: "directory", path: dir, wantErr: ErrNotRegular},
		{name: "missing", path: filepath.Join(dir, "absent.keytab"), wantErr: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := CheckSecretFile(tt.path)
			if tt.wantErr == nil {
				if err != nil || info == nil {
					t.Fatalf("CheckSecretFile() = %v, %v", info, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.keytab")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if WorldReadable(info) {
		t.Fatal("0600 file reported as world readable")
	}

	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if info, err = os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !WorldReadable(info) {
		t.Fatal("0644 file not reported as world readable")
	}
	if WorldReadable(nil) {
		t.Fatal("nil info must not be world readable")
	}
}

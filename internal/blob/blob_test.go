package blob_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/absfs/memfs"
	"github.com/efs-io/efs/internal/blob"
	"github.com/efs-io/efs/internal/efserr"
)

func newFS(t *testing.T) *memfs.FileSystem {
	t.Helper()
	fsys, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	return fsys
}

func testKey() []byte {
	key := make([]byte, blob.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestRoundTrip(t *testing.T) {
	fsys := newFS(t)
	key := testKey()
	plaintext := []byte("hello, encrypted filesystem")

	if err := blob.EncryptFile(fsys, "/secret", plaintext, key); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	got, err := blob.DecryptFile(fsys, "/secret", key)
	if err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestLayout(t *testing.T) {
	fsys := newFS(t)
	key := testKey()
	plaintext := []byte("abc")

	if err := blob.EncryptFile(fsys, "/f", plaintext, key); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	f, err := fsys.Open("/f")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	wantSize := int64(blob.IVSize + blob.TagSize + len(plaintext))
	if info.Size() != wantSize {
		t.Fatalf("on-disk size = %d, want %d", info.Size(), wantSize)
	}
}

func TestIntegrityFailureOnTamper(t *testing.T) {
	fsys := newFS(t)
	key := testKey()

	if err := blob.EncryptFile(fsys, "/f", []byte("tamper me"), key); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	f, err := fsys.OpenFile("/f", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0xFF}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	_, err = blob.DecryptFile(fsys, "/f", key)
	if err == nil {
		t.Fatalf("expected integrity failure, got nil error")
	}
	if !efserr.Is(err, efserr.IntegrityFailure) {
		t.Fatalf("expected IntegrityFailure, got %v", err)
	}
}

func TestWrongKeyFails(t *testing.T) {
	fsys := newFS(t)
	key := testKey()
	wrongKey := make([]byte, blob.KeySize)
	copy(wrongKey, key)
	wrongKey[0] ^= 0xFF

	if err := blob.EncryptFile(fsys, "/f", []byte("secret"), key); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	_, err := blob.DecryptFile(fsys, "/f", wrongKey)
	if !efserr.Is(err, efserr.IntegrityFailure) {
		t.Fatalf("expected IntegrityFailure with wrong key, got %v", err)
	}
}

func TestLeadingSpaceStripped(t *testing.T) {
	fsys := newFS(t)
	key := testKey()

	if err := blob.EncryptFile(fsys, "/f", []byte(" leading space"), key); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}

	got, err := blob.DecryptFile(fsys, "/f", key)
	if err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}
	if string(got) != "leading space" {
		t.Fatalf("got %q, want leading space stripped", got)
	}
}

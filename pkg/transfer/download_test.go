package transfer

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// readAll reads all remaining blocks from a download session, verifying that
// every block except the last is full.
func readAll(t *testing.T, download *Download, blockSize int) []byte {
	t.Helper()
	var result []byte
	var short bool
	for {
		block, err := download.Read()
		if err == io.EOF {
			return result
		} else if err != nil {
			t.Fatal("unable to read block:", err)
		}
		if short {
			t.Fatal("block received after short block")
		}
		short = len(block) < blockSize
		result = append(result, block...)
	}
}

func createSource(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal("unable to create source:", err)
	}
	return path
}

func TestDownloadFull(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefghij"), 25)
	path := createSource(t, content)

	// Open the session.
	download, err := OpenDownload(path, 0, 16, nil)
	if err != nil {
		t.Fatal("unable to open download:", err)
	}
	defer download.Close()
	if download.TotalSize() != uint64(len(content)) {
		t.Error("total size incorrect:", download.TotalSize())
	}

	// Read and verify.
	if result := readAll(t, download, 16); !bytes.Equal(result, content) {
		t.Error("downloaded content does not match")
	}
	if !download.Complete() {
		t.Error("download not complete")
	}
}

func TestDownloadResume(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefghij"), 25)
	path := createSource(t, content)

	// Open the session with a valid resume offset.
	download, err := OpenDownload(path, 100, 32, nil)
	if err != nil {
		t.Fatal("unable to open download:", err)
	}
	defer download.Close()
	if download.ResumeOffset() != 100 {
		t.Fatal("download did not resume:", download.ResumeOffset())
	}

	// Read and verify.
	if result := readAll(t, download, 32); !bytes.Equal(result, content[100:]) {
		t.Error("downloaded content does not match")
	}
}

func TestDownloadResumeOutOfRange(t *testing.T) {
	content := []byte("short content")
	path := createSource(t, content)

	// Offsets at or beyond the file size restart the transfer.
	for _, resume := range []uint64{uint64(len(content)), 1000} {
		download, err := OpenDownload(path, resume, 4, nil)
		if err != nil {
			t.Fatal("unable to open download:", err)
		}
		if download.ResumeOffset() != 0 {
			t.Error("out-of-range resume honored:", resume)
		}
		if result := readAll(t, download, 4); !bytes.Equal(result, content) {
			t.Error("downloaded content does not match")
		}
		download.Close()
	}
}

func TestDownloadEmpty(t *testing.T) {
	download, err := OpenDownload(createSource(t, nil), 0, 4, nil)
	if err != nil {
		t.Fatal("unable to open download:", err)
	}
	defer download.Close()
	if !download.Complete() {
		t.Error("empty download not immediately complete")
	}
	if _, err := download.Read(); err != io.EOF {
		t.Error("empty download read did not return EOF:", err)
	}
}

func TestDownloadTruncatedSource(t *testing.T) {
	path := createSource(t, bytes.Repeat([]byte{1}, 64))

	// Open the session and then shrink the source.
	download, err := OpenDownload(path, 0, 16, nil)
	if err != nil {
		t.Fatal("unable to open download:", err)
	}
	defer download.Close()
	if err := os.Truncate(path, 20); err != nil {
		t.Fatal("unable to truncate source:", err)
	}

	// Read until failure.
	var err2 error
	for err2 == nil {
		_, err2 = download.Read()
	}
	if err2 != ErrSourceTruncated {
		t.Error("truncation not detected:", err2)
	}
}

func TestDownloadInvalid(t *testing.T) {
	if _, err := OpenDownload(filepath.Join(t.TempDir(), "missing"), 0, 4, nil); err == nil {
		t.Error("download of missing file succeeded")
	}
	if _, err := OpenDownload(t.TempDir(), 0, 4, nil); err == nil {
		t.Error("download of directory succeeded")
	}
	if _, err := OpenDownload(createSource(t, []byte("x")), 0, 0, nil); err == nil {
		t.Error("download with zero block size succeeded")
	}
}

func TestDownloadClosed(t *testing.T) {
	download, err := OpenDownload(createSource(t, []byte("content")), 0, 4, nil)
	if err != nil {
		t.Fatal("unable to open download:", err)
	}
	if err := download.Close(); err != nil {
		t.Fatal("unable to close download:", err)
	}
	if _, err := download.Read(); err != ErrSessionClosed {
		t.Error("read from closed session did not fail as expected:", err)
	}
}

package client

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"github.com/fss-project/fss/pkg/protocol"
	"github.com/fss-project/fss/pkg/server"
)

// testBlockSize is the block size used by test servers.
const testBlockSize = 16

// testEnvironment is a running server with a connected client.
type testEnvironment struct {
	// root is the server root.
	root string
	// server is the server.
	server *server.Server
	// client is the connected client.
	client *Client
}

// newTestEnvironment starts a server for a temporary root and connects a
// client to it. Both are shut down when the test completes.
func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	root := t.TempDir()
	s, err := server.New(root, server.Options{
		BlockSize:           testBlockSize,
		ShutdownGracePeriod: time.Second,
		LockPath:            filepath.Join(t.TempDir(), "server.lock"),
	}, nil)
	if err != nil {
		t.Fatal("unable to create server:", err)
	}

	listener, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal("unable to create listener:", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, listener)
		close(done)
	}()

	client, err := Dial(listener.Addr().String())
	if err != nil {
		t.Fatal("unable to create client:", err)
	}

	t.Cleanup(func() {
		client.Close()
		cancel()
		<-done
	})

	return &testEnvironment{root: root, server: s, client: client}
}

// content generates deterministic file content of the specified length.
func content(length int) []byte {
	result := make([]byte, length)
	for i := range result {
		result[i] = byte(i*7 + 3)
	}
	return result
}

// writeFile writes a file or fails the test.
func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal("unable to write file:", err)
	}
}

// readFile reads a file or fails the test.
func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal("unable to read file:", err)
	}
	return data
}

// waitForIdle waits until the server has no active transfers.
func waitForIdle(t *testing.T, s *server.Server) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for s.ActiveTransfers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("transfers did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientDirectoryOperations(t *testing.T) {
	environment := newTestEnvironment(t)
	ctx := context.Background()

	if err := environment.client.MakeDirectory(ctx, "docs"); err != nil {
		t.Fatal("unable to create directory:", err)
	}
	if err := environment.client.MakeDirectory(ctx, "docs"); protocol.KindOf(err) != protocol.ErrorKindAlreadyExists {
		t.Error("duplicate directory creation returned unexpected error:", err)
	}
	writeFile(t, filepath.Join(environment.root, "docs", "b.txt"), nil)
	writeFile(t, filepath.Join(environment.root, "docs", "a.txt"), nil)

	listing, err := environment.client.List(ctx, "docs")
	if err != nil {
		t.Fatal("unable to list directory:", err)
	} else if len(listing) != 2 || listing[0] != "a.txt" || listing[1] != "b.txt" {
		t.Error("listing does not match expected:", listing)
	}

	if err := environment.client.RemoveDirectory(ctx, "docs"); protocol.KindOf(err) != protocol.ErrorKindNotEmpty {
		t.Error("non-empty directory removal returned unexpected error:", err)
	}
	if err := environment.client.Remove(ctx, "docs/a.txt"); err != nil {
		t.Fatal("unable to remove file:", err)
	}
	if err := environment.client.Remove(ctx, "docs/b.txt"); err != nil {
		t.Fatal("unable to remove file:", err)
	}
	if err := environment.client.RemoveDirectory(ctx, "docs"); err != nil {
		t.Fatal("unable to remove directory:", err)
	}
	if err := environment.client.Remove(ctx, "docs/a.txt"); protocol.KindOf(err) != protocol.ErrorKindNotFound {
		t.Error("removal of missing file returned unexpected error:", err)
	}
}

func TestClientErrorMessage(t *testing.T) {
	environment := newTestEnvironment(t)
	err := environment.client.Remove(context.Background(), "../escape")
	if err == nil {
		t.Fatal("relative path accepted")
	} else if err.Error() != "relative file paths are not supported" {
		t.Error("error message does not match expected:", err)
	}
}

func TestClientUploadDownload(t *testing.T) {
	environment := newTestEnvironment(t)
	ctx := context.Background()
	local := t.TempDir()

	expected := content(5*testBlockSize + 3)
	source := filepath.Join(local, "source")
	writeFile(t, source, expected)

	var reports []uint64
	result, err := environment.client.Upload(ctx, source, "file", func(position, total uint64) {
		reports = append(reports, position)
	})
	if err != nil {
		t.Fatal("unable to upload file:", err)
	}
	if result.TotalSize != uint64(len(expected)) || result.ResumeOffset != 0 || result.Transferred != uint64(len(expected)) {
		t.Error("upload result does not match expected:", *result)
	}
	if len(reports) != 7 || reports[len(reports)-1] != uint64(len(expected)) {
		t.Error("upload progress does not match expected:", reports)
	}
	if !bytes.Equal(readFile(t, filepath.Join(environment.root, "file")), expected) {
		t.Error("uploaded content does not match")
	}

	destination := filepath.Join(local, "destination")
	result, err = environment.client.Download(ctx, "file", destination, nil)
	if err != nil {
		t.Fatal("unable to download file:", err)
	}
	if result.ResumeOffset != 0 || result.Transferred != uint64(len(expected)) {
		t.Error("download result does not match expected:", *result)
	}
	if !bytes.Equal(readFile(t, destination), expected) {
		t.Error("downloaded content does not match")
	}
}

func TestClientUploadEmptyFile(t *testing.T) {
	environment := newTestEnvironment(t)
	source := filepath.Join(t.TempDir(), "empty")
	writeFile(t, source, nil)
	result, err := environment.client.Upload(context.Background(), source, "empty", nil)
	if err != nil {
		t.Fatal("unable to upload empty file:", err)
	} else if result.TotalSize != 0 || result.Transferred != 0 {
		t.Error("upload result does not match expected:", *result)
	}
	if metadata, err := os.Stat(filepath.Join(environment.root, "empty")); err != nil {
		t.Fatal("unable to query uploaded file:", err)
	} else if metadata.Size() != 0 {
		t.Error("uploaded file is not empty")
	}
}

func TestClientUploadResumesPartialContent(t *testing.T) {
	environment := newTestEnvironment(t)
	expected := content(4 * testBlockSize)
	source := filepath.Join(t.TempDir(), "source")
	writeFile(t, source, expected)

	// Simulate the remains of an interrupted upload.
	partial := 2*testBlockSize + 5
	writeFile(t, filepath.Join(environment.root, "file"), expected[:partial])

	result, err := environment.client.Upload(context.Background(), source, "file", nil)
	if err != nil {
		t.Fatal("unable to upload file:", err)
	}
	if result.ResumeOffset != uint64(partial) {
		t.Error("resume offset does not match expected:", result.ResumeOffset, "!=", partial)
	}
	if result.Transferred != uint64(len(expected)-partial) {
		t.Error("transferred byte count does not match expected:", result.Transferred)
	}
	if !bytes.Equal(readFile(t, filepath.Join(environment.root, "file")), expected) {
		t.Error("resumed upload content does not match")
	}
}

func TestClientUploadEqualLengthOverwrite(t *testing.T) {
	environment := newTestEnvironment(t)
	expected := content(3 * testBlockSize)
	source := filepath.Join(t.TempDir(), "source")
	writeFile(t, source, expected)
	writeFile(t, filepath.Join(environment.root, "file"), bytes.Repeat([]byte{0xff}, len(expected)))

	result, err := environment.client.Upload(context.Background(), source, "file", nil)
	if err != nil {
		t.Fatal("unable to upload file:", err)
	}
	if result.ResumeOffset != 0 || result.Transferred != uint64(len(expected)) {
		t.Error("equal-length upload did not restart:", *result)
	}
	if !bytes.Equal(readFile(t, filepath.Join(environment.root, "file")), expected) {
		t.Error("overwritten content does not match")
	}
}

func TestClientUploadInterruptedThenResumed(t *testing.T) {
	environment := newTestEnvironment(t)
	expected := content(64 * testBlockSize)
	source := filepath.Join(t.TempDir(), "source")
	writeFile(t, source, expected)

	// Cancel the upload partway through.
	ctx, cancel := context.WithCancel(context.Background())
	var cancelled bool
	_, err := environment.client.Upload(ctx, source, "file", func(position, total uint64) {
		if !cancelled && position >= total/2 {
			cancelled = true
			cancel()
			time.Sleep(100 * time.Millisecond)
		}
	})
	cancel()
	if err == nil {
		t.Fatal("cancelled upload succeeded")
	}

	// Wait for the server to release the session and then determine how much
	// content it persisted.
	waitForIdle(t, environment.server)
	metadata, err := os.Stat(filepath.Join(environment.root, "file"))
	if err != nil {
		t.Fatal("unable to query partial upload:", err)
	}
	persisted := uint64(metadata.Size())
	if persisted >= uint64(len(expected)) {
		t.Fatal("interrupted upload persisted complete content")
	}

	// Resume the upload.
	result, err := environment.client.Upload(context.Background(), source, "file", nil)
	if err != nil {
		t.Fatal("unable to resume upload:", err)
	}
	if result.ResumeOffset != persisted {
		t.Error("resume offset does not match persisted size:", result.ResumeOffset, "!=", persisted)
	}
	if result.Transferred != uint64(len(expected))-persisted {
		t.Error("transferred byte count does not match expected:", result.Transferred)
	}
	if !bytes.Equal(readFile(t, filepath.Join(environment.root, "file")), expected) {
		t.Error("resumed upload content does not match")
	}
}

func TestClientDownloadResumesPartialContent(t *testing.T) {
	environment := newTestEnvironment(t)
	expected := content(4*testBlockSize + 1)
	writeFile(t, filepath.Join(environment.root, "file"), expected)

	destination := filepath.Join(t.TempDir(), "destination")
	partial := testBlockSize + 2
	writeFile(t, destination, expected[:partial])

	result, err := environment.client.Download(context.Background(), "file", destination, nil)
	if err != nil {
		t.Fatal("unable to download file:", err)
	}
	if result.ResumeOffset != uint64(partial) || result.Transferred != uint64(len(expected)-partial) {
		t.Error("download result does not match expected:", *result)
	}
	if !bytes.Equal(readFile(t, destination), expected) {
		t.Error("resumed download content does not match")
	}
}

func TestClientDownloadReplacesOversizedLocalFile(t *testing.T) {
	environment := newTestEnvironment(t)
	expected := content(2 * testBlockSize)
	writeFile(t, filepath.Join(environment.root, "file"), expected)

	destination := filepath.Join(t.TempDir(), "destination")
	writeFile(t, destination, content(5*testBlockSize))

	result, err := environment.client.Download(context.Background(), "file", destination, nil)
	if err != nil {
		t.Fatal("unable to download file:", err)
	}
	if result.ResumeOffset != 0 || result.Transferred != uint64(len(expected)) {
		t.Error("download result does not match expected:", *result)
	}
	if !bytes.Equal(readFile(t, destination), expected) {
		t.Error("downloaded content does not match")
	}
}

// openDescriptorCount returns the number of file descriptors open in the
// current process.
func openDescriptorCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatal("unable to list file descriptors:", err)
	}
	return len(entries)
}

func TestClientDownloadReleasesLocalFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("descriptor counting requires procfs")
	}
	environment := newTestEnvironment(t)
	expected := content(8 * testBlockSize)
	writeFile(t, filepath.Join(environment.root, "file"), expected)
	destinations := t.TempDir()

	// Perform an initial download so that the connection is established.
	warmup := filepath.Join(destinations, "warmup")
	if _, err := environment.client.Download(context.Background(), "file", warmup, nil); err != nil {
		t.Fatal("unable to download file:", err)
	}
	waitForIdle(t, environment.server)
	baseline := openDescriptorCount(t)

	// Perform completed and cancelled downloads.
	for i := 0; i < 3; i++ {
		destination := filepath.Join(destinations, fmt.Sprintf("complete%d", i))
		if _, err := environment.client.Download(context.Background(), "file", destination, nil); err != nil {
			t.Fatal("unable to download file:", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancelOnData := func(position, _ uint64) {
			if position > 0 {
				cancel()
			}
		}
		// Buffered content may let the download finish despite cancellation,
		// so only the release of resources is checked.
		destination = filepath.Join(destinations, fmt.Sprintf("cancelled%d", i))
		environment.client.Download(ctx, "file", destination, cancelOnData)
		cancel()
		waitForIdle(t, environment.server)
	}

	// Verify that no local or remote files were left open.
	deadline := time.Now().Add(5 * time.Second)
	for openDescriptorCount(t) > baseline {
		if time.Now().After(deadline) {
			t.Fatal("file descriptors leaked:", openDescriptorCount(t), ">", baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientLocalErrors(t *testing.T) {
	environment := newTestEnvironment(t)
	ctx := context.Background()
	local := t.TempDir()
	writeFile(t, filepath.Join(environment.root, "file"), content(10))

	if _, err := environment.client.Upload(ctx, filepath.Join(local, "missing"), "file", nil); err == nil {
		t.Error("upload of missing local file succeeded")
	}
	if _, err := environment.client.Upload(ctx, local, "file", nil); err == nil {
		t.Error("upload of local directory succeeded")
	}
	if _, err := environment.client.Download(ctx, "file", local, nil); err == nil {
		t.Error("download to local directory succeeded")
	}
	if _, err := environment.client.Download(ctx, "file", filepath.Join(local, "missing", "file"), nil); err == nil {
		t.Error("download into missing local directory succeeded")
	}
	if environment.server.ActiveTransfers() != 0 {
		t.Error("local failures left transfers open")
	}
}

func TestClientRemoteTransferErrors(t *testing.T) {
	environment := newTestEnvironment(t)
	ctx := context.Background()
	if err := os.Mkdir(filepath.Join(environment.root, "directory"), 0755); err != nil {
		t.Fatal("unable to create directory:", err)
	}

	destination := filepath.Join(t.TempDir(), "destination")
	if _, err := environment.client.Download(ctx, "missing", destination, nil); protocol.KindOf(err) != protocol.ErrorKindNotFound {
		t.Error("download of missing file returned unexpected error:", err)
	}
	if _, err := environment.client.Download(ctx, "directory", destination, nil); protocol.KindOf(err) != protocol.ErrorKindInvalidArgument {
		t.Error("download of directory returned unexpected error:", err)
	}

	source := filepath.Join(t.TempDir(), "source")
	writeFile(t, source, content(10))
	if _, err := environment.client.Upload(ctx, source, "directory", nil); protocol.KindOf(err) != protocol.ErrorKindConflict {
		t.Error("upload over directory returned unexpected error:", err)
	}
}

func TestClientScenario(t *testing.T) {
	environment := newTestEnvironment(t)
	ctx := context.Background()
	local := t.TempDir()

	if err := environment.client.MakeDirectory(ctx, "docs"); err != nil {
		t.Fatal("unable to create directory:", err)
	}
	expected := []byte("hello, world\n")
	source := filepath.Join(local, "a.txt")
	writeFile(t, source, expected)
	if _, err := environment.client.Upload(ctx, source, "docs/a.txt", nil); err != nil {
		t.Fatal("unable to upload file:", err)
	}
	if listing, err := environment.client.List(ctx, "docs"); err != nil {
		t.Fatal("unable to list directory:", err)
	} else if len(listing) != 1 || listing[0] != "a.txt" {
		t.Error("listing does not match expected:", listing)
	}
	destination := filepath.Join(local, "b.txt")
	if _, err := environment.client.Download(ctx, "docs/a.txt", destination, nil); err != nil {
		t.Fatal("unable to download file:", err)
	} else if !bytes.Equal(readFile(t, destination), expected) {
		t.Error("downloaded content does not match")
	}
	if err := environment.client.Remove(ctx, "docs/a.txt"); err != nil {
		t.Fatal("unable to remove file:", err)
	}
	if err := environment.client.RemoveDirectory(ctx, "docs"); err != nil {
		t.Fatal("unable to remove directory:", err)
	}
	if listing, err := environment.client.List(ctx, "."); err != nil {
		t.Fatal("unable to list root:", err)
	} else if len(listing) != 0 {
		t.Error("root is not empty:", listing)
	}

	if err := environment.client.Shutdown(ctx); err != nil {
		t.Fatal("unable to shut down server:", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for environment.server.Running() {
		if time.Now().After(deadline) {
			t.Fatal("server did not stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"golang.org/x/net/nettest"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fss-project/fss/pkg/protocol"
	filesharingsvc "github.com/fss-project/fss/pkg/service/filesharing"
)

// newTestServer creates a server for a temporary root with a temporary lock.
func newTestServer(t *testing.T, options Options) (*Server, string) {
	t.Helper()
	if options.BlockSize == 0 {
		options.BlockSize = 32
	}
	if options.ShutdownGracePeriod == 0 {
		options.ShutdownGracePeriod = time.Second
	}
	lockPath := filepath.Join(t.TempDir(), "server.lock")
	options.LockPath = lockPath
	server, err := New(t.TempDir(), options, nil)
	if err != nil {
		t.Fatal("unable to create server:", err)
	}
	return server, lockPath
}

// startServer starts serving on a local listener and returns the listener
// address and a channel that receives the result of Serve.
func startServer(t *testing.T, ctx context.Context, server *Server) (string, <-chan error) {
	t.Helper()
	listener, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal("unable to create listener:", err)
	}
	result := make(chan error, 1)
	go func() {
		result <- server.Serve(ctx, listener)
	}()
	return listener.Addr().String(), result
}

// dial creates a client connection for the specified address. Each connection
// uses its own transport.
func dial(t *testing.T, address string) *grpc.ClientConn {
	t.Helper()
	connection, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal("unable to create client connection:", err)
	}
	t.Cleanup(func() { connection.Close() })
	return connection
}

// connect creates a FileSharing client for the specified address.
func connect(t *testing.T, address string) filesharingsvc.FileSharingClient {
	t.Helper()
	return filesharingsvc.NewFileSharingClient(dial(t, address))
}

// attempt performs a simple request within the specified context and returns
// the response or the first error encountered.
func attempt(ctx context.Context, client filesharingsvc.FileSharingClient, request *protocol.Request) (*protocol.Response, error) {
	stream, err := client.Exchange(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.Send(&protocol.Frame{Request: request}); err != nil {
		return nil, err
	}
	frame, err := stream.Recv()
	if err != nil {
		return nil, err
	} else if frame.Response == nil {
		return nil, errors.New("received non-response frame")
	}
	return frame.Response, nil
}

// stallUpload opens an upload and sends a single block without completing it.
func stallUpload(t *testing.T, client filesharingsvc.FileSharingClient, argument string) {
	t.Helper()
	stream, err := client.Exchange(context.Background())
	if err != nil {
		t.Fatal("unable to open exchange:", err)
	}
	request := &protocol.Request{Action: protocol.ActionUpload, Argument: argument, DeclaredSize: 1024 * 1024}
	if err := stream.Send(&protocol.Frame{Request: request}); err != nil {
		t.Fatal("unable to send request:", err)
	}
	if frame, err := stream.Recv(); err != nil {
		t.Fatal("unable to receive response:", err)
	} else if frame.Response == nil || !frame.Response.OK {
		t.Fatal("upload not accepted")
	}
	if err := stream.Send(&protocol.Frame{Block: &protocol.Block{Data: []byte("partial")}}); err != nil {
		t.Fatal("unable to send block:", err)
	}
}

// waitForResult waits for Serve to return.
func waitForResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

// exchange performs a simple request and returns the response.
func exchange(t *testing.T, client filesharingsvc.FileSharingClient, request *protocol.Request) *protocol.Response {
	t.Helper()
	stream, err := client.Exchange(context.Background())
	if err != nil {
		t.Fatal("unable to open exchange:", err)
	}
	if err := stream.Send(&protocol.Frame{Request: request}); err != nil {
		t.Fatal("unable to send request:", err)
	}
	frame, err := stream.Recv()
	if err != nil {
		t.Fatal("unable to receive response:", err)
	} else if frame.Response == nil {
		t.Fatal("received non-response frame")
	}
	return frame.Response
}

func TestNewInvalidOptions(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "lock")
	if _, err := New(t.TempDir(), Options{LockPath: lockPath}, nil); err == nil {
		t.Error("server created with zero block size")
	}
	if _, err := New(t.TempDir(), Options{BlockSize: 1, MaximumConnections: -1, LockPath: lockPath}, nil); err == nil {
		t.Error("server created with negative connection limit")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing"), Options{BlockSize: 1, LockPath: lockPath}, nil); err == nil {
		t.Error("server created for missing root")
	}
	if _, err := New(t.TempDir(), Options{BlockSize: 1, Exclude: []string{"[x"}, LockPath: lockPath}, nil); err == nil {
		t.Error("server created with invalid exclusion")
	}
}

func TestServerShutdownRequest(t *testing.T) {
	server, lockPath := newTestServer(t, Options{})
	address, result := startServer(t, context.Background(), server)
	client := connect(t, address)

	// Perform a normal request, which also ensures that the server is up.
	if response := exchange(t, client, &protocol.Request{Action: protocol.ActionListDirectory, Argument: "."}); !response.OK {
		t.Fatal("listing failed:", response.ErrorMessage)
	}
	if !server.Running() {
		t.Error("server not reported as running")
	}

	// Request shutdown.
	if response := exchange(t, client, &protocol.Request{Action: protocol.ActionShutdown}); !response.OK {
		t.Fatal("shutdown request failed:", response.ErrorMessage)
	}

	// Verify that the server stops cleanly.
	if err := waitForResult(t, result); err != nil {
		t.Error("server returned error after shutdown request:", err)
	}
	if server.Running() {
		t.Error("server reported as running after shutdown")
	}

	// Verify that the lock was released.
	lock, err := AcquireLock(lockPath, server.Root())
	if err != nil {
		t.Fatal("lock not released:", err)
	}
	if err := lock.Release(); err != nil {
		t.Error("unable to release lock:", err)
	}
}

func TestServerContextCancellation(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	_, result := startServer(t, ctx, server)
	cancel()
	if err := waitForResult(t, result); err != nil {
		t.Error("server returned error after cancellation:", err)
	}
}

func TestServerTerminateBeforeServe(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	server.Terminate()
	server.Terminate()
	_, result := startServer(t, context.Background(), server)
	if err := waitForResult(t, result); err != nil {
		t.Error("server returned error after early termination:", err)
	}
	if server.Running() {
		t.Error("terminated server reported as running")
	}
}

func TestServerServeOnce(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	server.Terminate()
	_, result := startServer(t, context.Background(), server)
	waitForResult(t, result)
	_, result = startServer(t, context.Background(), server)
	if err := waitForResult(t, result); err == nil {
		t.Error("second serve succeeded")
	}
}

func TestServerLockExclusive(t *testing.T) {
	root := t.TempDir()
	lockPath := filepath.Join(t.TempDir(), "exclusive.lock")
	options := Options{BlockSize: 32, LockPath: lockPath}

	// Create the first server.
	first, err := New(root, options, nil)
	if err != nil {
		t.Fatal("unable to create first server:", err)
	}

	// Verify that a second server can't be created.
	if _, err := New(root, options, nil); err == nil {
		t.Fatal("second server created while lock held")
	}

	// Close the first server and verify that a new server can be created.
	first.Close()
	second, err := New(root, options, nil)
	if err != nil {
		t.Fatal("unable to create server after lock release:", err)
	}
	second.Close()
}

func TestServerGracePeriodExpiry(t *testing.T) {
	server, _ := newTestServer(t, Options{ShutdownGracePeriod: 100 * time.Millisecond})
	address, result := startServer(t, context.Background(), server)
	client := connect(t, address)

	// Open an upload and stall it.
	stream, err := client.Exchange(context.Background())
	if err != nil {
		t.Fatal("unable to open exchange:", err)
	}
	request := &protocol.Request{Action: protocol.ActionUpload, Argument: "stalled", DeclaredSize: 1024}
	if err := stream.Send(&protocol.Frame{Request: request}); err != nil {
		t.Fatal("unable to send request:", err)
	}
	if frame, err := stream.Recv(); err != nil {
		t.Fatal("unable to receive response:", err)
	} else if frame.Response == nil || !frame.Response.OK {
		t.Fatal("upload not accepted")
	}
	if server.ActiveTransfers() != 1 {
		t.Error("active transfer count incorrect:", server.ActiveTransfers())
	}

	// Terminate and verify that the stalled transfer doesn't block shutdown.
	server.Terminate()
	if err := waitForResult(t, result); err != nil {
		t.Error("server returned error after termination:", err)
	}
	if server.ActiveTransfers() != 0 {
		t.Error("transfer sessions remain open after shutdown:", server.ActiveTransfers())
	}
}

func TestServerConnectionLimit(t *testing.T) {
	server, _ := newTestServer(t, Options{MaximumConnections: 1})
	address, result := startServer(t, context.Background(), server)

	// Multiplexed exchanges over a single connection aren't limited.
	client := connect(t, address)
	for i := 0; i < 3; i++ {
		if response := exchange(t, client, &protocol.Request{Action: protocol.ActionListDirectory, Argument: "."}); !response.OK {
			t.Fatal("listing failed:", response.ErrorMessage)
		}
	}

	server.Terminate()
	waitForResult(t, result)
}

func TestServerStalledConnectionIsolated(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	address, result := startServer(t, context.Background(), server)

	// Stall an upload on one connection.
	stallUpload(t, connect(t, address), "stalled")

	// Verify that a request on another connection completes promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	response, err := attempt(ctx, connect(t, address), &protocol.Request{Action: protocol.ActionMakeDirectory, Argument: "made"})
	if err != nil {
		t.Fatal("request blocked by stalled connection:", err)
	} else if !response.OK {
		t.Fatal("directory creation failed:", response.ErrorMessage)
	}
	if metadata, err := os.Stat(filepath.Join(server.Root(), "made")); err != nil || !metadata.IsDir() {
		t.Error("directory not created")
	}
	if server.ActiveTransfers() != 1 {
		t.Error("stalled transfer not active:", server.ActiveTransfers())
	}

	server.Terminate()
	waitForResult(t, result)
}

func TestServerConnectionLimitQueuesConnections(t *testing.T) {
	server, _ := newTestServer(t, Options{MaximumConnections: 1})
	address, result := startServer(t, context.Background(), server)
	request := &protocol.Request{Action: protocol.ActionListDirectory, Argument: "."}

	// Occupy the only connection slot.
	holder := dial(t, address)
	if response := exchange(t, filesharingsvc.NewFileSharingClient(holder), request); !response.OK {
		t.Fatal("listing failed:", response.ErrorMessage)
	}

	// Verify that a second connection isn't served while the slot is held.
	waiting := connect(t, address)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	if _, err := attempt(ctx, waiting, request); err == nil {
		t.Error("second connection served while connection limit reached")
	}
	cancel()

	// Release the slot and verify that the second connection is now served.
	holder.Close()
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if response, err := attempt(ctx, waiting, request); err != nil {
		t.Fatal("second connection not served after slot release:", err)
	} else if !response.OK {
		t.Fatal("listing failed:", response.ErrorMessage)
	}

	server.Terminate()
	waitForResult(t, result)
}

func TestLockReleaseAfterUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.lock")
	lock, err := AcquireLock(path, "/srv/root")
	if err != nil {
		t.Fatal("unable to acquire lock:", err)
	}

	// Release the underlying lock directly and verify that releasing the
	// server lock still succeeds.
	if err := lock.locker.Unlock(); err != nil {
		t.Fatal("unable to unlock:", err)
	}
	if err := lock.Release(); err != nil {
		t.Error("unable to release unlocked lock:", err)
	}

	// Verify that the lock can be reacquired.
	again, err := AcquireLock(path, "/srv/root")
	if err != nil {
		t.Fatal("unable to reacquire lock:", err)
	}
	if err := again.Release(); err != nil {
		t.Error("unable to release reacquired lock:", err)
	}
}

func TestDefaultLockPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	// Compute lock paths for two roots.
	first, err := DefaultLockPath("/srv/one")
	if err != nil {
		t.Fatal("unable to compute lock path:", err)
	}
	again, err := DefaultLockPath("/srv/one")
	if err != nil {
		t.Fatal("unable to compute lock path:", err)
	}
	second, err := DefaultLockPath("/srv/two")
	if err != nil {
		t.Fatal("unable to compute lock path:", err)
	}

	// Verify the results.
	if first != again {
		t.Error("lock path not deterministic")
	}
	if first == second {
		t.Error("lock paths for different roots collide")
	}
	if filepath.Dir(first) != filepath.Join(home, DataDirectoryName, LocksDirectoryName) {
		t.Error("lock path not within locks directory:", first)
	}
}

package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// testSSHServer is a minimal in-process SSH server. Exec requests carrying
// the transport's decode-then-execute wrapper are decoded and dispatched on
// the original script body; audit appends are recorded instead of executed.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}

	mu sync.Mutex
	// events records decoded traffic in arrival order, prefixed with
	// "run:" or "audit:".
	events []string
	// conns tracks live server-side connections so tests can sever them.
	conns []net.Conn
	// accepts counts accepted connections, re-dials included.
	accepts int
	// rejectNew closes new connections before the handshake completes.
	rejectNew bool
}

func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, hostKey, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			// Accept any public key for testing
			return nil, nil
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
	}

	go server.serve()

	return server
}

func (s *testSSHServer) serve() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		s.mu.Lock()
		s.accepts++
		reject := s.rejectNew
		if !reject {
			s.conns = append(s.conns, conn)
		}
		s.mu.Unlock()

		if reject {
			conn.Close()
			continue
		}

		go s.handleConnection(conn)
	}
}

// dropConnections severs every live connection server-side, as a network
// partition or peer reset would.
func (s *testSSHServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// setRejectNew makes the server kill new connections pre-handshake.
func (s *testSSHServer) setRejectNew(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNew = reject
}

func (s *testSSHServer) acceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go s.handleChannel(channel, requests)
	}
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:]) // Skip the length prefix

			if req.WantReply {
				req.Reply(true, nil)
			}

			s.runExec(channel, command)
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runExec dispatches one exec request and replies with an exit status.
func (s *testSSHServer) runExec(channel ssh.Channel, command string) {
	exit := func(code byte) {
		channel.SendRequest("exit-status", false, []byte{0, 0, 0, code})
	}

	// HealthCheck issues a raw "true" without the encoding wrapper.
	if command == "true" {
		exit(0)
		return
	}

	kind, body, ok := decodeRemote(command)
	if !ok {
		channel.Stderr().Write([]byte("unrecognized command\n"))
		exit(127)
		return
	}

	if kind == "audit" {
		s.record("audit:" + body)
		exit(0)
		return
	}

	s.record("run:" + body)

	switch {
	case body == "echo test":
		channel.Write([]byte("test\n"))
		exit(0)
	case body == "echo error >&2":
		channel.Stderr().Write([]byte("error\n"))
		exit(0)
	case strings.HasPrefix(body, "exit "):
		var code int
		fmt.Sscanf(body, "exit %d", &code)
		channel.Stderr().Write([]byte("failed\n"))
		exit(byte(code))
	default:
		channel.Write([]byte("body: " + body + "\n"))
		exit(0)
	}
}

// decodeRemote reverses the transport's encoding wrapper. The audit append
// may carry a mkdir prefix on its first use.
func decodeRemote(command string) (kind string, body string, ok bool) {
	idx := strings.Index(command, "echo ")
	if idx < 0 {
		return "", "", false
	}
	rest := command[idx+len("echo "):]

	i := strings.Index(rest, " | base64 -d")
	if i <= 0 {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(rest[:i])
	if err != nil {
		return "", "", false
	}

	tail := rest[i+len(" | base64 -d"):]
	switch {
	case strings.HasPrefix(tail, " | /bin/bash"):
		return "run", string(decoded), true
	case strings.HasPrefix(tail, " >>"):
		return "audit", string(decoded), true
	}
	return "", "", false
}

func (s *testSSHServer) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *testSSHServer) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

func generateTestKey() (ssh.PublicKey, ssh.Signer, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return nil, nil, err
	}

	publicKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}

	return publicKey, signer, nil
}

// testClientConfig returns a password-auth config against the test server.
func testClientConfig(server *testSSHServer) *Config {
	host, port := parseAddress(server.addr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second
	config.Retry = RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}
	return config
}

func connectedClient(t *testing.T, server *testSSHServer) *SSHClient {
	t.Helper()

	client, err := NewSSHClient(testClientConfig(server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })

	return client
}

func TestSSHClientConnect(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectedClient(t, server)

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}

	info := client.ConnectionInfo()
	host, _ := parseAddress(server.addr)
	if info.Host != host {
		t.Errorf("expected host %q, got %q", host, info.Host)
	}
	if info.User != "testuser" {
		t.Errorf("expected user 'testuser', got %q", info.User)
	}
}

func TestSSHClientHealthCheck(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectedClient(t, server)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestSSHClientDisconnect(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client := connectedClient(t, server)

	if err := client.Disconnect(); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected client to be disconnected")
	}
}

func TestSSHClientBadPassword(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testClientConfig(server)
	config.Password = "wrong"

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	err = client.Connect(context.Background())
	if err == nil {
		client.Disconnect()
		t.Fatal("expected connect to fail with bad password")
	}
	if !IsAuthError(err) {
		t.Errorf("expected an auth-class error, got %v", err)
	}
	if IsConnectionError(err) {
		t.Error("auth rejection must not be classified as connection-class")
	}
}

func TestSSHClientKeyBasedAuth(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "test_key")

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	config := testClientConfig(server)
	config.AuthMethod = AuthMethodKey
	config.Password = ""
	config.PrivateKeyPath = keyPath

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}
}

// parseAddress splits an address into host and port.
func parseAddress(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

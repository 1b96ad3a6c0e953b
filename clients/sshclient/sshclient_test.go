package sshclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type testServer struct {
	addr      string
	port      int
	hostKey   ssh.Signer
	clientKey []byte
}

// startServer runs an in-process SSH server that answers exec requests with handle.
func startServer(t *testing.T, handle func(cmd string, stdout, stderr io.Writer) int) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshClientPub, err := ssh.NewPublicKey(clientPub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), sshClientPub.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nConn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nConn, cfg, handle)
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return &testServer{
		addr:      tcpAddr.IP.String(),
		port:      tcpAddr.Port,
		hostKey:   hostSigner,
		clientKey: pem.EncodeToMemory(block),
	}
}

func serveConn(nConn net.Conn, cfg *ssh.ServerConfig, handle func(cmd string, stdout, stderr io.Writer) int) {
	_, chans, reqs, err := ssh.NewServerConn(nConn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range requests {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					req.Reply(false, nil)
					continue
				}
				req.Reply(true, nil)
				status := handle(payload.Command, ch, ch.Stderr())
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
				ch.Close()
				return
			}
		}()
	}
}

func echoHandler(cmd string, stdout, stderr io.Writer) int {
	switch cmd {
	case "fail":
		fmt.Fprint(stderr, "bad things")
		return 3
	default:
		fmt.Fprintf(stdout, "ran: %s", cmd)
		return 0
	}
}

func (s *testServer) config() Config {
	return Config{Address: s.addr, Port: s.port, User: "tester", PrivateKey: s.clientKey}
}

func TestRun(t *testing.T) {
	srv := startServer(t, echoHandler)

	client, err := Dial(context.Background(), srv.config())
	require.NoError(t, err)
	defer client.Close()

	var stdout bytes.Buffer
	require.NoError(t, client.Run(context.Background(), "uptime", &stdout, nil))
	assert.Equal(t, "ran: uptime", stdout.String())

	// The connection is reused for further sessions.
	stdout.Reset()
	require.NoError(t, client.Run(context.Background(), "df", &stdout, nil))
	assert.Equal(t, "ran: df", stdout.String())
}

func TestRun_ExitStatus(t *testing.T) {
	srv := startServer(t, echoHandler)

	client, err := Dial(context.Background(), srv.config())
	require.NoError(t, err)
	defer client.Close()

	var stderr bytes.Buffer
	err = client.Run(context.Background(), "fail", nil, &stderr)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Status)
	assert.Equal(t, "bad things", stderr.String())
}

func TestDial_KnownHosts(t *testing.T) {
	srv := startServer(t, echoHandler)
	addr := net.JoinHostPort(srv.addr, fmt.Sprint(srv.port))

	t.Run("matching key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, srv.hostKey.PublicKey())
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		cfg := srv.config()
		cfg.KnownHostsFile = path
		client, err := Dial(context.Background(), cfg)
		require.NoError(t, err)
		client.Close()
	})

	t.Run("mismatched key", func(t *testing.T) {
		_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		other, err := ssh.NewSignerFromKey(otherPriv)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, other.PublicKey())
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		cfg := srv.config()
		cfg.KnownHostsFile = path
		_, err = Dial(context.Background(), cfg)
		assert.Error(t, err)
	})
}

func TestDial_Errors(t *testing.T) {
	srv := startServer(t, echoHandler)

	t.Run("invalid key", func(t *testing.T) {
		cfg := srv.config()
		cfg.PrivateKey = []byte("not a key")
		_, err := Dial(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse private key")
	})

	t.Run("unauthorised key", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		block, err := ssh.MarshalPrivateKey(priv, "")
		require.NoError(t, err)

		cfg := srv.config()
		cfg.PrivateKey = pem.EncodeToMemory(block)
		_, err = Dial(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "establish SSH connection")
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := ReadKeyFile(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

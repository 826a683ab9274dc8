//go:build e2e

package e2e

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/contactbox/pkg/client"
)

// contactboxServer manages a running contactbox server process.
type contactboxServer struct {
	cmd     *exec.Cmd
	dataDir string
	dbPath  string
	address string
	apiKey  string
	logFile string
}

// startContactbox launches the binary and waits for it to become healthy.
// The server is configured entirely via environment variables.
func startContactbox(t *testing.T, extraEnv ...string) *contactboxServer {
	t.Helper()

	if contactboxBin == "" {
		t.Skip("contactbox binary not available (set CONTACTBOX_BIN or add to PATH)")
	}

	dataDir := t.TempDir()
	port := freePort(t)
	s := &contactboxServer{
		dataDir: dataDir,
		dbPath:  filepath.Join(dataDir, "contactbox.db"),
		address: fmt.Sprintf("127.0.0.1:%d", port),
		apiKey:  "e2e-admin-key",
		logFile: filepath.Join(dataDir, "contactbox.log"),
	}

	cmd := exec.Command(contactboxBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CONTACTBOX_PORT=%d", port),
		"CONTACTBOX_DB_PATH="+s.dbPath,
		"CONTACTBOX_ADMIN_API_KEY="+s.apiKey,
		"CONTACTBOX_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"CONTACTBOX_ENV_FILE="+filepath.Join(dataDir, "nonexistent.env"),
		"CONTACTBOX_NOTIFY_BACKEND=none",
		"CONTACTBOX_LOG_FORMAT=json",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	lf, err := os.Create(s.logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start contactbox: %v", err)
	}
	s.cmd = cmd

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(s.logFile)
		t.Fatalf("contactbox not healthy: %v\n%s", err, logs)
	}
	return s
}

func (s *contactboxServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *contactboxServer) baseURL() string {
	return "http://" + s.address
}

// client returns an API client, authenticated as admin when admin is true.
func (s *contactboxServer) client(t *testing.T, admin bool) *client.Client {
	t.Helper()
	cfg := client.Config{BaseURL: s.baseURL(), Timeout: 5 * time.Second}
	if admin {
		cfg.APIKey = s.apiKey
	}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func (s *contactboxServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/system/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("contactbox not healthy after %s", timeout)
}

// runCLI runs a one-shot subcommand against dbPath and returns its output.
func runCLI(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	args = append(args, "--db", dbPath)
	cmd := exec.Command(contactboxBin, args...)
	cmd.Env = append(os.Environ(),
		"CONTACTBOX_CONFIG_PATH="+filepath.Join(t.TempDir(), "nonexistent.yaml"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("contactbox %v: %v\n%s", args, err, stderr.String())
	}
	return string(out)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

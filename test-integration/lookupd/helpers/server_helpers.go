// Package helpers provides test utilities for lookupd integration tests.
package helpers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/refdatahq/lookupd/internal/app"
	"github.com/refdatahq/lookupd/internal/config"
)

// ServerTestHelper runs a lookupd server in-process for integration tests.
type ServerTestHelper struct {
	app     *app.LookupApp
	baseURL string
	client  *http.Client
	started chan error
}

// StartServer builds and starts a server over the given configuration on a
// free loopback port. Callers must Stop the returned helper.
func StartServer(ctx context.Context, cfg *config.Config) (*ServerTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}

	lookupApp, err := app.NewLookupApp(ctx, app.WithConfig(cfg), app.WithAddress(addr))
	if err != nil {
		return nil, err
	}

	h := &ServerTestHelper{
		app:     lookupApp,
		baseURL: "http://" + addr,
		client:  &http.Client{Timeout: 5 * time.Second},
		started: make(chan error, 1),
	}
	go func() { h.started <- lookupApp.Start() }()
	return h, nil
}

// Stop shuts the server down and returns the error Start exited with.
func (h *ServerTestHelper) Stop() error {
	if err := h.app.Stop(10 * time.Second); err != nil {
		return err
	}
	select {
	case err := <-h.started:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server did not stop in time")
	}
}

// WaitForServerReady polls the health endpoint until the server answers.
func (h *ServerTestHelper) WaitForServerReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(h.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready within %s", h.baseURL, timeout)
}

// Get performs a GET against the server and returns status and body.
func (h *ServerTestHelper) Get(path string) (int, []byte, error) {
	resp, err := h.client.Get(h.baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// Put performs a PUT with the given body and returns status and body.
func (h *ServerTestHelper) Put(path, body string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodPut, h.baseURL+path, strings.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

// Post performs a POST with no body and returns the status.
func (h *ServerTestHelper) Post(path string) (int, error) {
	resp, err := h.client.Post(h.baseURL+path, "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Delete performs a DELETE and returns the status.
func (h *ServerTestHelper) Delete(path string) (int, error) {
	req, err := http.NewRequest(http.MethodDelete, h.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// WriteDefinitionFile drops a definition document into dir.
func WriteDefinitionFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)
}

// RemoveDefinitionFile deletes a definition document from dir.
func RemoveDefinitionFile(dir, name string) error {
	return os.Remove(filepath.Join(dir, name))
}

// DirectoryConfig returns a config serving definitions from dir, persisting
// declarative tables under dataDir. The refresh loop runs fast so tests can
// observe background reloads without long waits.
func DirectoryConfig(dir, dataDir string, watch bool) *config.Config {
	return &config.Config{
		Sources: []config.SourceConfig{
			{
				Name: "local",
				Directory: &config.DirectorySourceConfig{
					Path:  dir,
					Watch: watch,
				},
			},
		},
		Refresh: config.RefreshConfig{
			CheckPeriod: "100ms",
		},
		Storage: config.StorageConfig{DataDir: dataDir},
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a scratch ledger and blob directory shared by the commands of
// one test.
type testEnv struct {
	dir   string
	db    string
	blobs string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return testEnv{
		dir:   dir,
		db:    filepath.Join(dir, "nowhere.db"),
		blobs: filepath.Join(dir, "blobs"),
	}
}

// exec runs the root command with the env's stores and returns stdout.
func (e testEnv) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--db", e.db, "--blobs", e.blobs}, args...))
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), err
}

// write stores content under the env's directory and returns its path.
func (e testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// response is CLIResponse with a typed payload.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

const searchScenario = `
name: cli_search
description: "two searches and a feed read"
correlation_key: corr-cli
flow:
  - name: first
    actor: search:brave
    kind: search
    params: { query: golang }
    response:
      status: 200
      body: '{"web":{"results":[{"url":"https://go.dev","title":"Go"},{"url":"https://pkg.go.dev","title":"Packages"}]}}'
  - name: second
    actor: search:brave
    kind: search
    parents: [first]
    params: { query: badger }
    response:
      status: 200
      body: '{"web":{"results":[{"url":"https://dgraph.io/badger","title":"Badger"}]}}'
  - name: feed
    actor: feed:go
    kind: items
    parents: [first]
    response:
      status: 200
      body: '{"items":[{"id":"a"},{"id":"b"}]}'
assertions:
  - type: pending_count
    count: 0
  - type: replay
    step: second
    state: verified
`

// seed records searchScenario into the env and returns the scenario path.
func (e testEnv) seed(t *testing.T) string {
	t.Helper()
	path := e.write(t, "search.yaml", searchScenario)
	_, err := e.exec(t, "run", path)
	require.NoError(t, err)
	return path
}

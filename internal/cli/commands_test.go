package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/testutil"
)

const testModels = `
entities:
  - name: contact
    table: adresar
    fields:
      - {name: id, type: integer, primary_key: true}
      - {name: code, column: kod, type: text, nullable: true}
      - {name: name, column: nazev, type: text}
      - {name: active, type: boolean, default: true}
      - {name: notes, type: text, nullable: true, shadow: true}
  - name: invoice
    table: faktura-vydana
    use_accounting_period: true
    fields:
      - {name: id, type: integer, primary_key: true}
      - {name: code, column: kod, type: text, nullable: true}
      - {name: total, column: sumCelkem, type: decimal, nullable: true}
      - {name: customer, column: firma, type: foreign_key, related: contact, nullable: true}
  - name: balance
    table: saldo
    view: true
    fields:
      - {name: id, type: integer, primary_key: true}
      - {name: amount, column: zbyvaUhradit, type: decimal, nullable: true}
`

type cliEnv struct {
	dir       string
	config    string
	transport *testutil.RecordingTransport
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	models := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(models, []byte(testModels), 0o644))

	config := filepath.Join(dir, "flexiql.yaml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf(
		"models: %s\ncompany: demo\nshadow:\n  dsn: %s\nlog:\n  level: error\n",
		models, filepath.Join(dir, "shadow.db"))), 0o644))

	return &cliEnv{dir: dir, config: config, transport: testutil.NewRecordingTransport()}
}

// run executes one command line with stdin and returns its stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Transport: e.transport})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun runs a command that must succeed.
func (e *cliEnv) mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := e.run(t, stdin, args...)
	require.NoError(t, err, out)
	return out
}

func (e *cliEnv) document(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestEntitiesCommand(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "", "entities")
	assert.Contains(t, out, "contact")
	assert.Contains(t, out, "faktura-vydana")
	assert.Contains(t, out, "view")

	resp := decodeResponse(t, env.mustRun(t, "", "--format", "json", "entities", "contact"))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "adresar", data["table"])
	assert.Equal(t, "read-write", data["access"])

	fields := data["fields"].([]any)
	require.Len(t, fields, 5)
	notes := fields[4].(map[string]any)
	assert.Equal(t, "notes", notes["name"])
	assert.Equal(t, true, notes["shadow"])
	assert.Equal(t, true, notes["writable"])
}

func TestCompanyCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "", "company", "add", "demo", "--name", "Demo s.r.o.")
	assert.Contains(t, out, "registered company demo")

	resp := decodeResponse(t, env.mustRun(t, "", "--format", "json", "company", "list"))
	companies := resp.Data.([]any)
	require.Len(t, companies, 1)
	assert.Equal(t, "demo", companies[0].(map[string]any)["db_name"])
	assert.Equal(t, "Demo s.r.o.", companies[0].(map[string]any)["name"])

	_, err := env.run(t, "", "company", "add", "demo")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	env.mustRun(t, "", "company", "remove", "demo")

	out, err = env.run(t, "", "company", "remove", "demo")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [SCOPE_NOT_FOUND]")
}

func TestRenderCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "", "company", "add", "demo")

	doc := "entity: contact\nwhere:\n  code__startswith: K\norder: [-name]\nlimit: 10\n"
	resp := decodeResponse(t, env.mustRun(t, doc, "--format", "json", "render", "-"))
	data := resp.Data.(map[string]any)

	assert.Equal(t, "adresar", data["table"])
	assert.Equal(t, "demo", data["company"])
	assert.Equal(t, "(kod begins 'K')", data["filter"])
	assert.Equal(t, []any{"nazev@D"}, data["order"])
	assert.Equal(t, []any{"id", "kod", "nazev", "active"}, data["columns"])
	assert.Equal(t, float64(10), data["limit"])
	assert.Empty(t, env.transport.Calls(), "render never calls the remote")

	out := env.mustRun(t, doc, "render", "-")
	assert.Contains(t, out, "filter:   (kod begins 'K')")
}

func TestInsertThenFetchMergesShadow(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "", "company", "add", "demo")

	resp := decodeResponse(t, env.mustRun(t, "entity: contact\n",
		"--format", "json", "insert", "-", "--set", "name=Acme", "--set", "notes=vip"))
	assert.Equal(t, map[string]any{"entity": "contact", "ids": []any{float64(1)}}, resp.Data)

	calls := env.transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, remote.Payload{"nazev": "Acme", "active": "true"}, calls[0].Payload)
	assert.Equal(t, "demo", calls[0].Scope.DBName)

	env.transport.Rows = []remote.Row{{"id": "1", "kod": "K1", "nazev": "Acme", "active": "true"}}
	doc := env.document(t, "contacts.yaml", "entity: contact\n")

	resp = decodeResponse(t, env.mustRun(t, "", "--format", "json", "fetch", doc))
	rows := resp.Data.([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Acme", row["name"])
	assert.Equal(t, "vip", row["notes"])
	assert.Equal(t, true, row["active"])

	out := env.mustRun(t, "", "fetch", doc)
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "vip")
}

func TestCountCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "", "company", "add", "demo")
	env.transport.CountResult = 42
	doc := env.document(t, "count.yaml", "entity: invoice\nwhere:\n  code__startswith: FV\n")

	out := env.mustRun(t, "", "count", doc)
	assert.Equal(t, "42\n", out)

	resp := decodeResponse(t, env.mustRun(t, "", "--format", "json", "count", doc, "--exists"))
	assert.Equal(t, map[string]any{"exists": false}, resp.Data)

	ops := env.transport.Ops()
	assert.Equal(t, []string{"count", "fetch"}, ops)
}

func TestUpdateAndDeleteCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "", "company", "add", "demo")
	env.transport.UpdateIDs = []int64{3, 5}
	env.transport.DeleteIDs = []int64{3}

	doc := "entity: contact\nwhere:\n  active: true\nvalues:\n  active: false\n"
	out := env.mustRun(t, doc, "update", "-", "--set", "notes=archived")
	assert.Contains(t, out, "contact: 2 object(s) [3, 5]")

	resp := decodeResponse(t, env.mustRun(t, "entity: contact\nwhere: {id: 3}\n", "--format", "json", "delete", "-"))
	assert.Equal(t, map[string]any{"entity": "contact", "ids": []any{float64(3)}}, resp.Data)

	calls := env.transport.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "update", calls[0].Op)
	assert.Equal(t, remote.Payload{"active": "false"}, calls[0].Payload)
	assert.Equal(t, "delete", calls[1].Op)
}

func TestFetchPrintsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"winstrom":{"adresar":[]}}`)
	}))
	t.Cleanup(srv.Close)

	env := newCLIEnv(t)
	env.mustRun(t, "", "company", "add", "demo")
	config, err := os.ReadFile(env.config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.config,
		append(config, []byte(fmt.Sprintf("flexibee:\n  url: %s\n", srv.URL))...), 0o644))

	run := func(args ...string) (string, string) {
		cmd := newRootCommand(&RootOptions{})
		var out, errOut bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetIn(strings.NewReader("entity: contact\n"))
		cmd.SetArgs(append([]string{"--config", env.config, "--format", "json"}, args...))
		require.NoError(t, cmd.Execute(), out.String())
		return out.String(), errOut.String()
	}

	out, stderr := run("--metrics", "fetch", "-")
	assert.Equal(t, []any{}, decodeResponse(t, out).Data)
	assert.Contains(t, stderr, `flexiql_flexibee_requests_total{method="GET",status="200",table="adresar"} 1`)
	assert.Contains(t, stderr, "flexiql_flexibee_request_duration_seconds_count")

	_, stderr = run("fetch", "-")
	assert.NotContains(t, stderr, "flexiql_flexibee_requests_total")
}

func TestCommandErrors(t *testing.T) {
	env := newCLIEnv(t)

	t.Run("unknown company", func(t *testing.T) {
		out, err := env.run(t, "entity: contact\n", "--format", "json", "fetch", "-")
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "SCOPE_NOT_FOUND", decodeResponse(t, out).Error.Code)
	})

	env.mustRun(t, "", "company", "add", "demo")

	t.Run("unsupported shape", func(t *testing.T) {
		out, err := env.run(t, "entity: invoice\njoins: [adresar]\n", "--format", "json", "fetch", "-")
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "UNSUPPORTED_QUERY_SHAPE", decodeResponse(t, out).Error.Code)
	})

	t.Run("write to view", func(t *testing.T) {
		out, err := env.run(t, "entity: balance\n", "insert", "-", "--set", "amount=1")
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [OPERATION_NOT_ALLOWED]")
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := env.run(t, "", "fetch", filepath.Join(env.dir, "missing.yaml"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("update without values", func(t *testing.T) {
		out, err := env.run(t, "entity: contact\n", "update", "-")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "no values to write")
	})

	t.Run("bad set pair", func(t *testing.T) {
		_, err := env.run(t, "entity: contact\n", "insert", "-", "--set", "name")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	assert.Empty(t, env.transport.Calls(), "no request for rejected commands")
}

package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "METHOD", "PATH", "OP")
	table.AddRow("GET", "/tenants/{tenantId}", "tenants.get")
	table.AddRow("POST", "/x")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "METHOD  PATH                 OP", lines[0])
	assert.Equal(t, "──────  ───────────────────  ───────────", lines[1])
	assert.Equal(t, "GET     /tenants/{tenantId}  tenants.get", lines[2])
	assert.Equal(t, "POST    /x", lines[3])
	assert.Equal(t, 2, table.Len())
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Version", "1.0.0")
	kv.AddRow("Go", "go1.24")
	kv.Render()

	assert.Equal(t, "Version: 1.0.0\nGo:      go1.24\n", buf.String())
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Routes", true)
	assert.Equal(t, "Routes\n──────\n", buf.String())
}

func TestMessage_Format(t *testing.T) {
	msg := Message{
		Context:     "unknown operation",
		Problem:     "billing.subscrbe",
		Details:     []string{"referenced by invalidate[0]"},
		Suggestions: []string{"billing.subscribe"},
		Hints:       []string{"List operations: opmeta routes"},
		NoColor:     true,
	}

	want := "✗ UNKNOWN OPERATION: billing.subscrbe\n" +
		"   referenced by invalidate[0]\n" +
		"\n   Did you mean: billing.subscribe?\n" +
		"\n   → List operations: opmeta routes\n"
	assert.Equal(t, want, msg.Format())

	var buf bytes.Buffer
	Warning("cache disabled", true).Write(&buf)
	assert.Equal(t, "! cache disabled\n", buf.String())
}

func TestValidationFailed(t *testing.T) {
	verrs := opmeta.NewValidationErrors("billing.subscribe")
	verrs.Add("service.fn", "is required")
	verrs.Add("perm", "must not be empty")

	out := ValidationFailed("POST /subscriptions", verrs, true).Format()
	assert.Contains(t, out, "INVALID METADATA: POST /subscriptions (billing.subscribe)")
	assert.Less(t, strings.Index(out, "perm: must not be empty"), strings.Index(out, "service.fn: is required"))
	assert.Contains(t, out, "--lenient")
}

func TestUnknownOp(t *testing.T) {
	out := UnknownOp("billing.subscrbe", []string{"billing.subscribe", "users.get"}, true).Format()
	assert.Contains(t, out, "Did you mean: billing.subscribe?")
	assert.NotContains(t, out, "users.get")
}

func TestConfigFailed(t *testing.T) {
	out := ConfigFailed(errors.New("server.port out of range: 70000"), true).Format()
	assert.Contains(t, out, "CONFIGURATION ERROR: server.port out of range")
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "4 operations valid", true)
	assert.Equal(t, "✓ 4 operations valid\n", buf.String())
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"users.get", "users.list", "billing.subscribe", "Users.Gets"}

	assert.Equal(t, []string{"Users.Gets", "users.get"}, FindSimilar("users.gte", candidates, 2, 3))
	assert.Equal(t, []string{"users.get"}, FindSimilar("USERS.GET", candidates, 0, 3))
	assert.Empty(t, FindSimilar("orders", candidates, 2, 3))
	assert.Len(t, FindSimilar("users", candidates, 10, 1), 1)
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevenshteinDistance(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
}

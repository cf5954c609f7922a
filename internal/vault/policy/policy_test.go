package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind/aegis/internal/vault/crypto"
	"github.com/localmind/aegis/internal/vault/store"
	"github.com/localmind/aegis/pkg/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	key, err := crypto.RandomBytes(crypto.KeyLen)
	require.NoError(t, err)
	v, err := store.OpenInMemory(key)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return New(v)
}

func TestEvaluate_DefaultsToConfirmWithNoPolicies(t *testing.T) {
	e := testEngine(t)
	d, err := e.Evaluate("github", "repo.read", "myorg/myrepo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyConfirm, d)
}

func TestEvaluate_ExactMatchWins(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: "repo.read", Resource: "myorg/myrepo", Decision: models.PolicyAllow})
	require.NoError(t, err)

	d, err := e.Evaluate("github", "repo.read", "myorg/myrepo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyAllow, d)
}

func TestEvaluate_WildcardResource(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: "repo.read", Resource: models.Wildcard, Decision: models.PolicyAllow})
	require.NoError(t, err)

	d, err := e.Evaluate("github", "repo.read", "any/repo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyAllow, d)
}

func TestEvaluate_WildcardAction(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: models.Wildcard, Resource: models.Wildcard, Decision: models.PolicyDeny})
	require.NoError(t, err)

	d, err := e.Evaluate("github", "repo.delete", "myorg/myrepo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyDeny, d)
}

func TestEvaluate_SpecificOverridesWildcard(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: models.Wildcard, Resource: models.Wildcard, Decision: models.PolicyDeny})
	require.NoError(t, err)
	_, err = e.AddPolicy(models.Policy{Provider: "github", Action: "repo.read", Resource: "myorg/myrepo", Decision: models.PolicyAllow})
	require.NoError(t, err)

	d, err := e.Evaluate("github", "repo.read", "myorg/myrepo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyAllow, d)

	d, err = e.Evaluate("github", "repo.write", "other/repo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyDeny, d)
}

func TestEvaluate_MostRestrictiveWinsAtSameSpecificity(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: models.Wildcard, Resource: models.Wildcard, Decision: models.PolicyAllow})
	require.NoError(t, err)
	_, err = e.AddPolicy(models.Policy{Provider: "github", Action: models.Wildcard, Resource: "secret/repo", Decision: models.PolicyDeny})
	require.NoError(t, err)

	// Both match "repo.read, secret/repo" at specificity tier 2; Deny must win.
	d, err := e.Evaluate("github", "repo.read", "secret/repo")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyDeny, d)
}

func TestRemovePolicy(t *testing.T) {
	e := testEngine(t)
	id, err := e.AddPolicy(models.Policy{Provider: "slack", Action: "post", Resource: "#general", Decision: models.PolicyAllow})
	require.NoError(t, err)

	require.NoError(t, e.RemovePolicy(id))
	assert.ErrorIs(t, e.RemovePolicy(id), ErrPolicyNotFound)

	d, err := e.Evaluate("slack", "post", "#general")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyConfirm, d)
}

func TestListPolicies_FiltersByProvider(t *testing.T) {
	e := testEngine(t)
	_, err := e.AddPolicy(models.Policy{Provider: "github", Action: "repo.read", Resource: models.Wildcard, Decision: models.PolicyAllow})
	require.NoError(t, err)
	_, err = e.AddPolicy(models.Policy{Provider: "slack", Action: "post", Resource: models.Wildcard, Decision: models.PolicyDeny})
	require.NoError(t, err)

	got, err := e.ListPolicies("github")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "github", got[0].Provider)

	all, err := e.ListPolicies("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEvaluate_RecordsAuditEntries(t *testing.T) {
	e := testEngine(t)
	_, err := e.Evaluate("github", "repo.read", "myorg/myrepo")
	require.NoError(t, err)
	_, err = e.Evaluate("github", "repo.write", "myorg/myrepo")
	require.NoError(t, err)

	entries, err := e.QueryAuditLog("github", time.Unix(0, 0), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, models.PolicyConfirm, entry.Decision)
	}
}

func TestEvaluate_RateLimitDegradesAllowToConfirm(t *testing.T) {
	e := testEngine(t)
	limit := 1
	_, err := e.AddPolicy(models.Policy{
		Provider: "github", Action: "repo.read", Resource: models.Wildcard,
		Decision: models.PolicyAllow, RateLimit: &limit,
	})
	require.NoError(t, err)

	first, err := e.Evaluate("github", "repo.read", "a")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyAllow, first)

	second, err := e.Evaluate("github", "repo.read", "b")
	require.NoError(t, err)
	assert.Equal(t, models.PolicyConfirm, second)
}

func TestQueryAuditLog_FiltersBySince(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.RecordAudit("github", "repo.read", "a", models.PolicyAllow, ""))

	future := time.Now().Add(time.Hour)
	entries, err := e.QueryAuditLog("", future, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = e.QueryAuditLog("", time.Unix(0, 0), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPolicyDecision_Ordering(t *testing.T) {
	assert.True(t, models.PolicyAllow < models.PolicyConfirm)
	assert.True(t, models.PolicyConfirm < models.PolicyDeny)
}

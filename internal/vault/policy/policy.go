// Package policy implements the vault's permission policy engine: rule
// evaluation over (provider, action, resource) triples, specificity-tiered
// resolution, optional per-policy rate limiting, and an append-only audit
// log. The shape (Resolver-style engine, RWMutex-guarded state) follows the
// teacher's tool-name policy resolver; the evaluation semantics follow the
// reference vault's (provider, action, resource) engine directly.
package policy

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/localmind/aegis/internal/vault/store"
	"github.com/localmind/aegis/pkg/models"
)

var ErrPolicyNotFound = errors.New("policy: not found")

// Engine evaluates actions against stored policies and records audit
// entries. It shares the vault's SQLite database rather than owning its own
// connection, so policies and credentials stay transactionally colocated.
type Engine struct {
	vault *store.Vault
	log   *slog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter // policy id -> hourly token bucket, built lazily
}

// New creates a policy engine operating on the given vault.
func New(vault *store.Vault) *Engine {
	return &Engine{
		vault:    vault,
		log:      slog.Default().With("component", "vault.policy"),
		limiters: make(map[int64]*rate.Limiter),
	}
}

type matchedPolicy struct {
	id        int64
	action    string
	resource  string
	decision  models.PolicyDecision
	rateLimit *int
}

// Evaluate resolves a decision for (provider, action, resource) using the
// specificity-tiered rule below, and always records the outcome in the
// audit log.
//
// Specificity (lower wins): 0 = exact action+resource, 1 = wildcard
// resource, 2 = wildcard action. Ties within the same tier are broken by the
// most restrictive decision (Deny > Confirm > Allow). Absent any matching
// policy, the default is Confirm (ask the user).
func (e *Engine) Evaluate(provider, action, resource string) (models.PolicyDecision, error) {
	rows, err := e.vault.DB().Query(`
		SELECT id, action, resource, decision, rate_limit
		FROM policies
		WHERE provider = ?
		  AND (action = ? OR action = ?)
		  AND (resource = ? OR resource = ?)`,
		provider, action, models.Wildcard, resource, models.Wildcard,
	)
	if err != nil {
		return models.PolicyConfirm, fmt.Errorf("policy: query: %w", err)
	}
	defer rows.Close()

	var matches []matchedPolicy
	for rows.Next() {
		var (
			m        matchedPolicy
			decision string
		)
		if err := rows.Scan(&m.id, &m.action, &m.resource, &decision, &m.rateLimit); err != nil {
			return models.PolicyConfirm, fmt.Errorf("policy: scan: %w", err)
		}
		parsed, _ := models.ParsePolicyDecision(decision)
		m.decision = parsed
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return models.PolicyConfirm, err
	}

	decision := models.PolicyConfirm
	var winner *matchedPolicy
	if len(matches) == 0 {
		e.log.Debug("no matching policy, defaulting to confirm", "provider", provider, "action", action, "resource", resource)
	} else {
		bestSpecificity := 3
		for i := range matches {
			m := &matches[i]
			specificity := specificityOf(m.action, m.resource)
			if specificity < bestSpecificity || (specificity == bestSpecificity && m.decision > decision) {
				bestSpecificity = specificity
				decision = m.decision
				winner = m
			} else if specificity == bestSpecificity && winner == nil {
				decision = m.decision
				winner = m
			}
		}
	}

	if decision == models.PolicyAllow && winner != nil && winner.rateLimit != nil {
		if !e.allow(winner.id, *winner.rateLimit) {
			decision = models.PolicyConfirm
			e.log.Info("rate limit exceeded, degrading to confirm", "provider", provider, "action", action, "policy_id", winner.id)
		}
	}

	if err := e.RecordAudit(provider, action, resource, decision, ""); err != nil {
		return decision, err
	}
	return decision, nil
}

func specificityOf(action, resource string) int {
	switch {
	case action != models.Wildcard && resource != models.Wildcard:
		return 0
	case action != models.Wildcard:
		return 1
	default:
		return 2
	}
}

// allow consumes one token from the policy's hourly bucket, creating the
// limiter lazily on first use.
func (e *Engine) allow(policyID int64, perHour int) bool {
	e.mu.Lock()
	limiter, ok := e.limiters[policyID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), perHour)
		e.limiters[policyID] = limiter
	}
	e.mu.Unlock()
	return limiter.Allow()
}

// AddPolicy inserts a new rule and returns its row id.
func (e *Engine) AddPolicy(p models.Policy) (int64, error) {
	res, err := e.vault.DB().Exec(`
		INSERT INTO policies (provider, action, resource, decision, rate_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Provider, p.Action, p.Resource, p.Decision.String(), p.RateLimit, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("policy: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.log.Info("added policy", "id", id, "provider", p.Provider, "action", p.Action, "resource", p.Resource, "decision", p.Decision)
	return id, nil
}

// RemovePolicy deletes a rule by id.
func (e *Engine) RemovePolicy(id int64) error {
	res, err := e.vault.DB().Exec(`DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("policy: delete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPolicyNotFound
	}
	e.mu.Lock()
	delete(e.limiters, id)
	e.mu.Unlock()
	e.log.Info("removed policy", "id", id)
	return nil
}

// ListPolicies returns all policies, optionally filtered by provider.
func (e *Engine) ListPolicies(provider string) ([]models.Policy, error) {
	query := `SELECT id, provider, action, resource, decision, rate_limit, created_at FROM policies`
	args := []any{}
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY provider, action, resource`

	rows, err := e.vault.DB().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var (
			p         models.Policy
			decision  string
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Provider, &p.Action, &p.Resource, &decision, &p.RateLimit, &createdAt); err != nil {
			return nil, err
		}
		p.Decision, _ = models.ParsePolicyDecision(decision)
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordAudit appends an entry to the audit log. Every Evaluate call does
// this automatically; callers may also record out-of-band events (e.g. a
// manual override) directly.
func (e *Engine) RecordAudit(provider, action, resource string, decision models.PolicyDecision, detail string) error {
	_, err := e.vault.DB().Exec(`
		INSERT INTO audit_log (provider, action, resource, decision, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		provider, action, nullableString(resource), decision.String(), nullableString(detail), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("policy: record audit: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// QueryAuditLog returns audit entries, most recent first, optionally
// filtered by provider and a minimum timestamp.
func (e *Engine) QueryAuditLog(provider string, since time.Time, limit int) ([]models.AuditEntry, error) {
	query := `SELECT id, provider, action, resource, decision, detail, timestamp FROM audit_log WHERE timestamp >= ?`
	args := []any{since.Unix()}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := e.vault.DB().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			entry            models.AuditEntry
			resource, detail sql.NullString
			decision         string
			timestamp        int64
		)
		if err := rows.Scan(&entry.ID, &entry.Provider, &entry.Action, &resource, &decision, &detail, &timestamp); err != nil {
			return nil, err
		}
		entry.Resource = resource.String
		entry.Detail = detail.String
		entry.Decision, _ = models.ParsePolicyDecision(decision)
		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

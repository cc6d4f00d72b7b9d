package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrTenantNotFound means no agency is registered for the address.
var ErrTenantNotFound = errors.New("tenant not found")

// Resolver maps a tenant-identifying contact address to an internal tenant id.
type Resolver interface {
	ResolveByEmail(ctx context.Context, email string) (string, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PGResolver looks agencies up by contact email, case-insensitively.
type PGResolver struct {
	DB *sql.DB
}

func (r *PGResolver) ResolveByEmail(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrTenantNotFound
	}
	const query = `SELECT id FROM agencies WHERE lower(contact_email) = $1 LIMIT 1`
	var id string
	if err := r.DB.QueryRowContext(ctx, query, email).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("resolve tenant: %w", err)
	}
	return id, nil
}

// MemoryResolver is a fixed in-memory directory.
type MemoryResolver struct {
	mu      sync.RWMutex
	byEmail map[string]string
}

// NewMemoryResolver constructs a resolver seeded with email -> tenant id pairs.
func NewMemoryResolver(seed map[string]string) *MemoryResolver {
	r := &MemoryResolver{byEmail: make(map[string]string, len(seed))}
	for email, id := range seed {
		r.byEmail[normalizeEmail(email)] = id
	}
	return r
}

// Register adds or replaces one entry.
func (r *MemoryResolver) Register(email, tenantID string) {
	r.mu.Lock()
	r.byEmail[normalizeEmail(email)] = tenantID
	r.mu.Unlock()
}

func (r *MemoryResolver) ResolveByEmail(ctx context.Context, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	id, ok := r.byEmail[normalizeEmail(email)]
	r.mu.RUnlock()
	if !ok || id == "" {
		return "", ErrTenantNotFound
	}
	return id, nil
}

var (
	_ Resolver = (*PGResolver)(nil)
	_ Resolver = (*MemoryResolver)(nil)
)

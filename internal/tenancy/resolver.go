package tenancy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// ErrTenantNotFound is returned when no tenant owns the given number.
var ErrTenantNotFound = errors.New("tenancy: tenant not found")

// Resolver maps an inbound phone number (E.164) to the owning tenant.
type Resolver interface {
	ResolveByNumber(ctx context.Context, number string) (string, error)
}

// StaticResolver resolves tenants from a fixed number→tenant map. Used in
// tests and single-tenant deployments.
type StaticResolver struct {
	mu      sync.RWMutex
	numbers map[string]string
}

// NewStaticResolver creates a resolver over the given number→tenant map.
func NewStaticResolver(numbers map[string]string) *StaticResolver {
	copied := make(map[string]string, len(numbers))
	for k, v := range numbers {
		copied[k] = v
	}
	return &StaticResolver{numbers: copied}
}

// ResolveByNumber looks the number up in the static map.
func (r *StaticResolver) ResolveByNumber(_ context.Context, number string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantID, ok := r.numbers[number]
	if !ok {
		return "", ErrTenantNotFound
	}
	return tenantID, nil
}

// Assign maps a number to a tenant.
func (r *StaticResolver) Assign(number, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[number] = tenantID
}

// Querier is the pgx query surface the resolver needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresResolver resolves tenants from the tenant_numbers table.
type PostgresResolver struct {
	pool Querier
}

// NewPostgresResolver initializes a resolver backed by pgx.
func NewPostgresResolver(pool Querier) *PostgresResolver {
	if pool == nil {
		panic("tenancy: pgx pool required")
	}
	return &PostgresResolver{pool: pool}
}

// ResolveByNumber fetches the tenant owning the number.
func (r *PostgresResolver) ResolveByNumber(ctx context.Context, number string) (string, error) {
	query := `
		SELECT tenant_id
		FROM tenant_numbers
		WHERE phone_number = $1
	`
	var tenantID string
	if err := r.pool.QueryRow(ctx, query, number).Scan(&tenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("tenancy: resolve number: %w", err)
	}
	return tenantID, nil
}

var _ Resolver = (*StaticResolver)(nil)
var _ Resolver = (*PostgresResolver)(nil)

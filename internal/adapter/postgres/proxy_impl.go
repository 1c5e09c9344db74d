package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ProxyRepoImpl provides a concrete implementation for the ProxyRepository interface using PostgreSQL.
type ProxyRepoImpl struct {
	db *pgxpool.Pool
}

// NewProxyRepo creates a new instance of ProxyRepoImpl.
func NewProxyRepo(db *pgxpool.Pool) *ProxyRepoImpl {
	return &ProxyRepoImpl{db: db}
}

func (r *ProxyRepoImpl) List(ctx context.Context) ([]*entity.Proxy, error) {
	query := `
		SELECT id, ip, port, COALESCE(username, ''), COALESCE(password, ''), is_active, last_checked_at
		FROM proxies
		ORDER BY id;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []*entity.Proxy
	for rows.Next() {
		var p entity.Proxy
		if err := rows.Scan(&p.ID, &p.IP, &p.Port, &p.Username, &p.Password, &p.Active, &p.LastCheckedAt); err != nil {
			return nil, err
		}
		proxies = append(proxies, &p)
	}
	return proxies, rows.Err()
}

// Upsert inserts p unless its ip:port is already known. Existing rows keep
// their health state.
func (r *ProxyRepoImpl) Upsert(ctx context.Context, p *entity.Proxy) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO proxies (ip, port, username, password, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (ip, port) DO NOTHING
		RETURNING id;
	`, p.IP, p.Port, p.Username, p.Password, p.Active).Scan(&p.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	err = r.db.QueryRow(ctx, `SELECT id FROM proxies WHERE ip = $1 AND port = $2`, p.IP, p.Port).Scan(&p.ID)
	return false, err
}

func (r *ProxyRepoImpl) SetActive(ctx context.Context, id int64, active bool, checkedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE proxies SET is_active = $2, last_checked_at = $3 WHERE id = $1`,
		id, active, checkedAt)
	return err
}

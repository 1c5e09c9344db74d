package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

// ScrapedDataRepoImpl provides a concrete implementation for the ScrapedDataRepository interface using PostgreSQL.
type ScrapedDataRepoImpl struct {
	db *pgxpool.Pool
}

// NewScrapedDataRepo creates a new instance of ScrapedDataRepoImpl.
func NewScrapedDataRepo(db *pgxpool.Pool) *ScrapedDataRepoImpl {
	return &ScrapedDataRepoImpl{db: db}
}

// SaveResult stores one row per item within a single transaction.
func (r *ScrapedDataRepoImpl) SaveResult(ctx context.Context, sourceURL string, result *entity.ScrapeResult) error {
	if len(result.Items) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", repository.ErrPersistenceFailure, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, item := range result.Items {
		raw, err := json.Marshal(item)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO scraped_data (source_url, title, price, description, raw_results, scraped_at)
		             VALUES ($1, $2, $3, $4, $5, $6)`,
			sourceURL, item.Title, item.Price, item.Description, raw, item.ScrapedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: insert scraped data: %w", repository.ErrPersistenceFailure, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", repository.ErrPersistenceFailure, err)
	}
	return nil
}

// FindByURL retrieves the stored items for a source URL, newest first.
func (r *ScrapedDataRepoImpl) FindByURL(ctx context.Context, sourceURL string) ([]entity.ScrapedItem, error) {
	query := `
		SELECT id, source_url, title, price, description, raw_results, scraped_at
		FROM scraped_data
		WHERE source_url = $1
		ORDER BY scraped_at DESC, id DESC;
	`
	rows, err := r.db.Query(ctx, query, sourceURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []entity.ScrapedItem{}
	for rows.Next() {
		var (
			item entity.ScrapedItem
			raw  []byte
		)
		if err := rows.Scan(
			&item.ID,
			&item.SourceURL,
			&item.Title,
			&item.Price,
			&item.Description,
			&raw,
			&item.ScrapedAt,
		); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			var stored entity.ScrapedItem
			if err := json.Unmarshal(raw, &stored); err == nil {
				item.Page = stored.Page
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

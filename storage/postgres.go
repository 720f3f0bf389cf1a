package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"casaingest/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Tenants
// =============================================================================

func (s *PostgresStore) FirstTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM tenants ORDER BY created_at LIMIT 1`).Scan(&t.ID, &t.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// Properties
// =============================================================================

const propertyColumns = `id, tenant_id, property_name, description, location, latitude, longitude,
	price, property_type, status, bedrooms, bathrooms, square_meters, lot_size,
	parking_spaces, pool, amenities, source_url, source_website, listing_id,
	date_listed, content_for_search, embedding IS NOT NULL, created_at, updated_at`

// CreateProperty writes the property, its ordered images and its
// amenities in one transaction. The first image is the primary one.
func (s *PostgresStore) CreateProperty(ctx context.Context, p *models.Property) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO properties (
			id, tenant_id, property_name, description, location, latitude, longitude,
			price, property_type, status, bedrooms, bathrooms, square_meters, lot_size,
			parking_spaces, pool, amenities, source_url, source_website, listing_id,
			date_listed, content_for_search, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)`

	_, err = tx.Exec(ctx, query,
		p.ID, p.TenantID, p.Name, p.Description, p.Location, p.Latitude, p.Longitude,
		nullDec(p.Price), p.PropertyType, p.Status, p.Bedrooms, nullDec(p.Bathrooms),
		nullDec(p.SquareMeters), nullDec(p.LotSize), p.ParkingSpaces, p.Pool, p.Amenities,
		p.SourceURL, p.SourceWebsite, p.ListingID, p.DateListed, p.ContentForSearch,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}

	for i := range p.Images {
		img := &p.Images[i]
		img.PropertyID = p.ID
		img.SortOrder = i
		img.IsPrimary = i == 0

		_, err = tx.Exec(ctx, `
			INSERT INTO property_images (id, property_id, url, is_primary, sort_order, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			img.ID, img.PropertyID, img.URL, img.IsPrimary, img.SortOrder, img.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert image %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetPropertyBySourceURL(ctx context.Context, tenantID, sourceURL string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE tenant_id = $1 AND source_url = $2 LIMIT 1`
	return s.scanProperty(s.pool.QueryRow(ctx, query, tenantID, sourceURL))
}

func (s *PostgresStore) GetPropertyByID(ctx context.Context, id string) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	return s.scanProperty(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) scanProperty(row pgx.Row) (*models.Property, error) {
	var p models.Property
	var price, bathrooms, squareMeters, lotSize decimal.NullDecimal

	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Location, &p.Latitude, &p.Longitude,
		&price, &p.PropertyType, &p.Status, &p.Bedrooms, &bathrooms, &squareMeters, &lotSize,
		&p.ParkingSpaces, &p.Pool, &p.Amenities, &p.SourceURL, &p.SourceWebsite, &p.ListingID,
		&p.DateListed, &p.ContentForSearch, &p.HasEmbedding, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Price = decPtr(price)
	p.Bathrooms = decPtr(bathrooms)
	p.SquareMeters = decPtr(squareMeters)
	p.LotSize = decPtr(lotSize)
	return &p, nil
}

func (s *PostgresStore) GetPropertyImages(ctx context.Context, propertyID string) ([]models.PropertyImage, error) {
	query := `
		SELECT id, property_id, url, COALESCE(archive_url, ''), is_primary, sort_order, created_at
		FROM property_images WHERE property_id = $1 ORDER BY sort_order`

	rows, err := s.pool.Query(ctx, query, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.PropertyImage
	for rows.Next() {
		var img models.PropertyImage
		if err := rows.Scan(&img.ID, &img.PropertyID, &img.URL, &img.ArchiveURL, &img.IsPrimary, &img.SortOrder, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// =============================================================================
// Embeddings
// =============================================================================

func (s *PostgresStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32, content string) error {
	query := `UPDATE properties SET embedding = $2, content_for_search = $3, updated_at = NOW() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, embedding, content)
	return err
}

// ListMissingEmbeddings returns properties without a stored vector.
// With force set it returns every property, oldest first.
func (s *PostgresStore) ListMissingEmbeddings(ctx context.Context, force bool, limit int) ([]models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE embedding IS NULL ORDER BY created_at LIMIT $1`
	if force {
		query = `SELECT ` + propertyColumns + ` FROM properties ORDER BY created_at LIMIT $1`
	}

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		p, err := s.scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}

// =============================================================================
// Stats
// =============================================================================

func (s *PostgresStore) IngestStats(ctx context.Context, tenantID string) (*models.IngestStats, error) {
	stats := &models.IngestStats{}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= CURRENT_DATE),
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days')
		FROM properties WHERE tenant_id = $1`

	if err := s.pool.QueryRow(ctx, query, tenantID).Scan(&stats.Today, &stats.ThisWeek, &stats.ThisMonth); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, property_name, source_website, created_at
		FROM properties WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT 10`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.RecentEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.SourceWebsite, &e.CreatedAt); err != nil {
			return nil, err
		}
		stats.Recent = append(stats.Recent, e)
	}
	return stats, rows.Err()
}

// =============================================================================
// Image archive queue
// =============================================================================

func (s *PostgresStore) GetPendingArchiveImages(ctx context.Context, limit int) ([]models.PropertyImage, error) {
	query := `
		SELECT id, property_id, url, COALESCE(archive_url, ''), is_primary, sort_order, created_at
		FROM property_images
		WHERE archive_url IS NULL OR archive_url = ''
		ORDER BY created_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.PropertyImage
	for rows.Next() {
		var img models.PropertyImage
		if err := rows.Scan(&img.ID, &img.PropertyID, &img.URL, &img.ArchiveURL, &img.IsPrimary, &img.SortOrder, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) UpdateImageArchiveURL(ctx context.Context, id, archiveURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE property_images SET archive_url = $2 WHERE id = $1`, id, archiveURL)
	return err
}

// =============================================================================
// Helpers
// =============================================================================

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	return &nd.Decimal
}

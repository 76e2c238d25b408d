package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halc8312/esp/internal/models"
)

const maxOptions = 3

// ProductStore persists tracked products, their snapshots and variants.
// Price and status changes are written to the outbox in the same
// transaction as the product row.
type ProductStore struct {
	db     *DB
	outbox *OutboxRepository
	stream string
	logger *slog.Logger
}

func NewProductStore(db *DB, stream string, logger *slog.Logger) *ProductStore {
	if stream == "" {
		stream = DefaultChangeStream
	}
	return &ProductStore{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
		logger: logger.With("component", "product_store"),
	}
}

const productColumns = `id, owner_id, site, source_url, last_title, last_price, last_status, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.TrackedProduct, error) {
	var (
		p      models.TrackedProduct
		status string
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Site, &p.SourceURL, &p.LastTitle,
		&p.LastPrice, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LastStatus = models.Status(status)
	return &p, nil
}

// FindByURL looks a product up by owner and normalized source URL.
func (s *ProductStore) FindByURL(ctx context.Context, ownerID int64, rawURL string) (*models.TrackedProduct, error) {
	return s.findByURL(ctx, s.db, ownerID, models.NormalizeURL(rawURL))
}

func (s *ProductStore) findByURL(ctx context.Context, q dbtx, ownerID int64, sourceURL string) (*models.TrackedProduct, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 AND source_url = $2`

	p, err := scanProduct(q.QueryRow(ctx, query, ownerID, sourceURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return p, nil
}

// Get returns a product with its variants.
func (s *ProductStore) Get(ctx context.Context, id int64) (*models.TrackedProduct, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	variants, err := s.loadVariants(ctx, s.db, []int64{id})
	if err != nil {
		return nil, err
	}
	p.Variants = variants[id]
	return p, nil
}

// Create inserts a new product. A concurrent insert of the same owner and
// URL resolves to the existing row.
func (s *ProductStore) Create(ctx context.Context, p *models.TrackedProduct) error {
	return s.create(ctx, s.db, p)
}

func (s *ProductStore) create(ctx context.Context, q dbtx, p *models.TrackedProduct) error {
	p.SourceURL = models.NormalizeURL(p.SourceURL)
	if p.LastStatus == "" {
		p.LastStatus = models.StatusActive
	}

	query := `
		INSERT INTO products (owner_id, site, source_url, last_title, last_price, last_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, source_url) DO UPDATE SET source_url = EXCLUDED.source_url
		RETURNING id, created_at, updated_at`

	err := q.QueryRow(ctx, query,
		p.OwnerID, p.Site, p.SourceURL, p.LastTitle, p.LastPrice, string(p.LastStatus),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// AppendSnapshot records an immutable copy of one full scrape.
func (s *ProductStore) AppendSnapshot(ctx context.Context, snap *models.Snapshot) error {
	return s.appendSnapshot(ctx, s.db, snap)
}

func (s *ProductStore) appendSnapshot(ctx context.Context, q dbtx, snap *models.Snapshot) error {
	if snap.ScrapedAt.IsZero() {
		snap.ScrapedAt = time.Now()
	}

	query := `
		INSERT INTO product_snapshots (product_id, scraped_at, title, price, status, description, image_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := q.QueryRow(ctx, query,
		snap.ProductID, snap.ScrapedAt, snap.Title, snap.Price, string(snap.Status),
		snap.Description, strings.Join(snap.ImageURLs, "|"),
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// UpdateRepresentative sets the product's headline fields. A blank title or
// missing price keeps the stored value.
func (s *ProductStore) UpdateRepresentative(ctx context.Context, id int64, title string, price *int, status models.Status, at time.Time) error {
	return s.updateRepresentative(ctx, s.db, id, title, price, status, at)
}

func (s *ProductStore) updateRepresentative(ctx context.Context, q dbtx, id int64, title string, price *int, status models.Status, at time.Time) error {
	query := `
		UPDATE products
		SET last_title = COALESCE(NULLIF($2, ''), last_title),
			last_price = COALESCE($3, last_price),
			last_status = $4,
			updated_at = $5
		WHERE id = $1`

	result, err := q.Exec(ctx, query, id, title, price, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// UpsertVariant updates the variant matching v's option values, or failing
// that its joined name, and inserts it otherwise.
func (s *ProductStore) UpsertVariant(ctx context.Context, v *models.StoredVariant) error {
	return s.upsertVariant(ctx, s.db, v)
}

func (s *ProductStore) upsertVariant(ctx context.Context, q dbtx, v *models.StoredVariant) error {
	opts := splitOptions(v.OptionValues)

	update := `
		UPDATE variants
		SET price = COALESCE($5, price), inventory_qty = $6, position = $7,
			sku = COALESCE(NULLIF(sku, ''), $8)
		WHERE id = (
			SELECT id FROM variants
			WHERE product_id = $1
				AND ((option1 = $2 AND option2 = $3 AND option3 = $4)
					OR concat_ws(' / ', NULLIF(option1, ''), NULLIF(option2, ''), NULLIF(option3, '')) = $9)
			ORDER BY (option1 = $2 AND option2 = $3 AND option3 = $4) DESC, id
			LIMIT 1
		)
		RETURNING id, sku`

	err := q.QueryRow(ctx, update,
		v.ProductID, opts[0], opts[1], opts[2], v.Price, v.StockQty, v.Position, v.SKU, v.Name(),
	).Scan(&v.ID, &v.SKU)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update variant: %w", err)
	}

	insert := `
		INSERT INTO variants (product_id, option1, option2, option3, sku, price, inventory_qty, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		v.ProductID, opts[0], opts[1], opts[2], v.SKU, v.Price, v.StockQty, v.Position,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to insert variant: %w", err)
	}
	return nil
}

// splitOptions maps option values onto the three option columns. Extra
// values are folded into the last column.
func splitOptions(values []string) [maxOptions]string {
	var out [maxOptions]string
	for i, v := range values {
		if i >= maxOptions-1 {
			out[maxOptions-1] = strings.Join(values[maxOptions-1:], " / ")
			break
		}
		out[i] = v
	}
	return out
}

func joinOptions(opts ...string) []string {
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		if o != "" {
			values = append(values, o)
		}
	}
	return values
}

func (s *ProductStore) loadVariants(ctx context.Context, q dbtx, ids []int64) (map[int64][]models.StoredVariant, error) {
	out := make(map[int64][]models.StoredVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT id, product_id, option1, option2, option3, sku, price, inventory_qty, position
		FROM variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, position, id`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v          models.StoredVariant
			o1, o2, o3 string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &o1, &o2, &o3, &v.SKU, &v.Price, &v.StockQty, &v.Position); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.OptionValues = joinOptions(o1, o2, o3)
		out[v.ProductID] = append(out[v.ProductID], v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// ListStale returns up to limit products, least recently updated first.
func (s *ProductStore) ListStale(ctx context.Context, limit int) ([]models.TrackedProduct, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		ORDER BY updated_at ASC, id ASC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale products: %w", err)
	}
	defer rows.Close()

	var (
		products []models.TrackedProduct
		ids      []int64
	)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	variants, err := s.loadVariants(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}

	return products, nil
}

// ApplyPatrol writes the observed changes, advances updated_at and queues
// change events in one transaction.
func (s *ProductStore) ApplyPatrol(ctx context.Context, id int64, changes models.ProductChanges, at time.Time) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
		p, err := scanProduct(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}

		var status *string
		if changes.Status != nil {
			v := string(*changes.Status)
			status = &v
		}

		update := `
			UPDATE products
			SET last_price = CASE WHEN $2 THEN $3 ELSE last_price END,
				last_status = COALESCE($4, last_status),
				updated_at = $5
			WHERE id = $1`
		if _, err := tx.Exec(ctx, update, id, changes.Price != nil, changes.Price, status, at); err != nil {
			return fmt.Errorf("failed to apply patrol: %w", err)
		}

		for _, vc := range changes.Variants {
			_, err := tx.Exec(ctx, `
				UPDATE variants
				SET inventory_qty = COALESCE($3, inventory_qty),
					price = COALESCE($4, price)
				WHERE id = $1 AND product_id = $2`,
				vc.VariantID, id, vc.StockQty, vc.Price)
			if err != nil {
				return fmt.Errorf("failed to update variant %d: %w", vc.VariantID, err)
			}
		}

		events, err := changeEvents(*p, changes, s.stream, at)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := s.outbox.Insert(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

// Touch only advances updated_at.
func (s *ProductStore) Touch(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.Exec(ctx, `UPDATE products SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

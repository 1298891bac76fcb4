package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

var (
	ErrModelNotFound   = errors.New("model not found")
	ErrProductNotFound = errors.New("product not found")
)

type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

func (r *CatalogRepo) ListModels(ctx context.Context, limit int) ([]model.CreatorModel, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, name, slug, bio, gallery_refs, active, created_at
FROM creator_models
WHERE active
ORDER BY name ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := make([]model.CreatorModel, 0)
	for rows.Next() {
		var m model.CreatorModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Slug, &m.Bio, &m.GalleryRefs, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return out, nil
}

func (r *CatalogRepo) GetModel(ctx context.Context, modelID int64) (model.CreatorModel, error) {
	if r.pool == nil {
		return model.CreatorModel{}, errNilPool
	}

	var m model.CreatorModel
	err := r.pool.QueryRow(ctx, `
SELECT id, name, slug, bio, gallery_refs, active, created_at
FROM creator_models
WHERE id = $1
  AND active
`, modelID).Scan(&m.ID, &m.Name, &m.Slug, &m.Bio, &m.GalleryRefs, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CreatorModel{}, ErrModelNotFound
		}
		return model.CreatorModel{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListProducts returns active products of a model, optionally narrowed to one product type.
func (r *CatalogRepo) ListProducts(ctx context.Context, modelID int64, productType enums.ProductType) ([]model.Product, error) {
	if r.pool == nil {
		return nil, errNilPool
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, model_id, name, description, type, price_cents, currency, access_days, active
FROM products
WHERE model_id = $1
  AND active
  AND ($2::text = '' OR type = $2::text)
ORDER BY price_cents ASC, id ASC
`, modelID, string(productType))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func (r *CatalogRepo) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if r.pool == nil {
		return model.Product{}, errNilPool
	}

	p, err := scanProduct(r.pool.QueryRow(ctx, `
SELECT id, model_id, name, description, type, price_cents, currency, access_days, active
FROM products
WHERE id = $1
`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, ErrProductNotFound
		}
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *CatalogRepo) ListContent(ctx context.Context, productID int64) ([]model.ContentItem, error) {
	if r.pool == nil {
		return nil, errNilPool
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, product_id, kind, file_id, object_key, position
FROM content_items
WHERE product_id = $1
ORDER BY position ASC, id ASC
`, productID)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	out := make([]model.ContentItem, 0)
	for rows.Next() {
		var (
			item model.ContentItem
			kind string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &kind, &item.FileID, &item.ObjectKey, &item.Position); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		item.Kind = enums.MediaKind(kind)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p           model.Product
		productType string
		priceCents  int64
	)
	if err := row.Scan(&p.ID, &p.ModelID, &p.Name, &p.Description, &productType, &priceCents, &p.Currency, &p.AccessDays, &p.Active); err != nil {
		return model.Product{}, err
	}
	p.Type = enums.ProductType(productType)
	p.Price = model.FromCents(priceCents)
	return p, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/epicerie/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, description, image FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, description, image FROM products WHERE id = $1`

	listVariantsSQL = `SELECT product_id, weight, price FROM weight_variants ORDER BY product_id, price`

	getVariantsSQL = `SELECT product_id, weight, price FROM weight_variants
		WHERE product_id = $1 ORDER BY price`

	// Products are ranked by the quantity ordered so far; products never
	// ordered follow in catalog order.
	bestSellersSQL = `SELECT p.id, p.name, p.description, p.image, v.weight, v.price
		FROM products p
		JOIN weight_variants v ON v.product_id = p.id
		LEFT JOIN (
			SELECT product_id, SUM(quantity) AS sold FROM order_lines GROUP BY product_id
		) s ON s.product_id = p.id
		ORDER BY COALESCE(s.sold, 0) DESC, p.id, v.price
		LIMIT $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products with their variants, ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, classify("product.List", fmt.Errorf("listing products: %w", err))
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, classify("product.List", fmt.Errorf("listing products: %w", err))
	}

	rows, err = r.pool.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, classify("product.List", fmt.Errorf("listing variants: %w", err))
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, classify("product.List", fmt.Errorf("listing variants: %w", err))
	}

	byProduct := make(map[int64][]product.Variant, len(products))
	for _, v := range variants {
		byProduct[v.productID] = append(byProduct[v.productID], v.Variant)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return products, nil
}

// GetByID returns a single product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, classify("product.GetByID", fmt.Errorf("getting product %d: %w", id, err))
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, notFoundOr("product.GetByID", "product not found", err)
	}

	p.Variants, err = r.Variants(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Variants returns the weight variants of a product, cheapest first.
func (r *ProductRepository) Variants(ctx context.Context, productID int64) ([]product.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, productID)
	if err != nil {
		return nil, classify("product.Variants", fmt.Errorf("getting variants of %d: %w", productID, err))
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, classify("product.Variants", fmt.Errorf("getting variants of %d: %w", productID, err))
	}
	out := make([]product.Variant, len(variants))
	for i, v := range variants {
		out[i] = v.Variant
	}
	return out, nil
}

// BestSellers returns up to limit product/variant pairs.
func (r *ProductRepository) BestSellers(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, bestSellersSQL, limit)
	if err != nil {
		return nil, classify("product.BestSellers", fmt.Errorf("listing best sellers: %w", err))
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var (
			p product.Product
			v product.Variant
		)
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &v.Weight, &v.Price)
		p.Variants = []product.Variant{v}
		return p, err
	})
	if err != nil {
		return nil, classify("product.BestSellers", fmt.Errorf("listing best sellers: %w", err))
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image)
	return p, err
}

type variantRow struct {
	productID int64
	product.Variant
}

func scanVariant(row pgx.CollectableRow) (variantRow, error) {
	var v variantRow
	err := row.Scan(&v.productID, &v.Weight, &v.Price)
	return v, err
}

package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

var (
	_ port.VectorLibrary = (*PostgresStore)(nil)
	_ port.PriceStore    = (*PostgresStore)(nil)
)

func selectVectorsQuery() sq.SelectBuilder {
	return psql.Select("origin", "productid", "imgvector", "imgextension", "created_at").
		From("item_vectors").
		OrderBy("origin", "productid")
}

func selectProductIDsQuery(origin string) sq.SelectBuilder {
	return psql.Select("productid").
		From("item_vectors").
		Where(sq.Eq{"origin": origin}).
		OrderBy("productid")
}

func upsertVectorQuery(rec domain.VectorRecord) sq.InsertBuilder {
	return psql.Insert("item_vectors").
		Columns("origin", "productid", "imgvector", "imgextension").
		Values(rec.Origin, rec.ProductID, string(rec.Vector), rec.ImageExtension).
		Suffix("ON CONFLICT (origin, productid) DO UPDATE SET imgvector = EXCLUDED.imgvector, imgextension = EXCLUDED.imgextension, created_at = NOW()")
}

func insertPriceQuery(row domain.PriceRow) sq.InsertBuilder {
	return psql.Insert("item_prices").
		Columns("origin", "productid", "price", "currency").
		Values(row.Origin, row.ProductID, row.Price, row.Currency)
}

// SelectVectors reads the whole vector library.
func (s *PostgresStore) SelectVectors(ctx context.Context) ([]domain.VectorRecord, error) {
	query, args, err := selectVectorsQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select vectors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select vectors: %w", err)
	}
	defer rows.Close()

	var out []domain.VectorRecord
	for rows.Next() {
		var rec domain.VectorRecord
		var vector string
		if err := rows.Scan(&rec.Origin, &rec.ProductID, &vector, &rec.ImageExtension, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		rec.Vector = []byte(vector)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	return out, nil
}

// SelectProductIDs lists the product ids stored for one origin.
func (s *PostgresStore) SelectProductIDs(ctx context.Context, origin string) ([]string, error) {
	query, args, err := selectProductIDsQuery(origin).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select product ids: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select product ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertVector inserts or replaces the vector of one product.
func (s *PostgresStore) UpsertVector(ctx context.Context, rec domain.VectorRecord) error {
	query, args, err := upsertVectorQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert vector: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// CleanVectors deletes the whole library and returns the number of rows removed.
func (s *PostgresStore) CleanVectors(ctx context.Context) (int64, error) {
	query, args, err := psql.Delete("item_vectors").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build clean vectors: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clean vectors: %w", err)
	}
	return res.RowsAffected()
}

// InsertPrice appends one row to the price history.
func (s *PostgresStore) InsertPrice(ctx context.Context, row domain.PriceRow) error {
	query, args, err := insertPriceQuery(row).ToSql()
	if err != nil {
		return fmt.Errorf("build insert price: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/matching-engine/internal/entity"
)

type ShareholderRepository struct {
	db *sqlx.DB
}

func NewShareholderRepository(db *sqlx.DB) *ShareholderRepository {
	return &ShareholderRepository{db: db}
}

func (r *ShareholderRepository) GetAll(ctx context.Context) ([]entity.Shareholder, error) {
	var shareholders []entity.Shareholder
	err := r.db.SelectContext(ctx, &shareholders, "SELECT * FROM shareholders ORDER BY id")
	if err != nil {
		return nil, err
	}
	return shareholders, nil
}

func (r *ShareholderRepository) GetAllPositions(ctx context.Context) ([]entity.ShareholderPosition, error) {
	var positions []entity.ShareholderPosition
	err := r.db.SelectContext(ctx, &positions, "SELECT * FROM shareholder_positions")
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// UpsertPositions writes the given positions in a single statement.
func (r *ShareholderRepository) UpsertPositions(ctx context.Context, positions []entity.ShareholderPosition) error {
	if len(positions) == 0 {
		return nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.ShareholderPosition{}.TableName()).
		Columns("shareholder_id", "isin", "quantity", "updated_at")

	for _, position := range positions {
		queryBuilder = queryBuilder.Values(
			position.ShareholderID,
			position.ISIN,
			position.Quantity,
			position.UpdatedAt,
		)
	}

	query, args, err := queryBuilder.
		Suffix(`ON CONFLICT (shareholder_id, isin)
DO UPDATE SET
	quantity = EXCLUDED.quantity,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

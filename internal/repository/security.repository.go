package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/matching-engine/internal/entity"
)

type SecurityRepository struct {
	db *sqlx.DB
}

func NewSecurityRepository(db *sqlx.DB) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// GetAll returns every security, or only the listed ISINs when isins is not empty.
func (r *SecurityRepository) GetAll(ctx context.Context, isins []string) ([]entity.Security, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.Security{}.TableName()).
		OrderBy("isin")
	if len(isins) > 0 {
		queryBuilder = queryBuilder.Where(sq.Eq{"isin": isins})
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var securities []entity.Security
	err = r.db.SelectContext(ctx, &securities, query, args...)
	if err != nil {
		return nil, err
	}

	return securities, nil
}

func (r *SecurityRepository) UpdateMarketState(ctx context.Context, isin string, state entity.MatchingState, lastTradePrice int64) error {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.Security{}.TableName()).
		Set("matching_state", state).
		Set("last_trade_price", lastTradePrice).
		Set("updated_at", null.TimeFrom(time.Now().UTC())).
		Where(sq.Eq{"isin": isin}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SecurityRepository) UpdateLastTradePrice(ctx context.Context, isin string, lastTradePrice int64) error {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.Security{}.TableName()).
		Set("last_trade_price", lastTradePrice).
		Set("updated_at", null.TimeFrom(time.Now().UTC())).
		Where(sq.Eq{"isin": isin}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/matching-engine/internal/entity"
)

type TradeRepository struct {
	db *sqlx.DB
}

func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// CreateBatch inserts trades, skipping ids already stored so redelivered
// events are harmless.
func (r *TradeRepository) CreateBatch(ctx context.Context, trades []entity.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.Trade{}.TableName()).
		Columns(
			"id",
			"event_id",
			"request_id",
			"isin",
			"price",
			"quantity",
			"value",
			"buy_order_id",
			"sell_order_id",
			"buy_broker_id",
			"sell_broker_id",
			"buy_shareholder_id",
			"sell_shareholder_id",
			"traded_at",
		)

	for _, trade := range trades {
		queryBuilder = queryBuilder.Values(
			trade.ID,
			trade.EventID,
			trade.RequestID,
			trade.ISIN,
			trade.Price,
			trade.Quantity,
			trade.Value,
			trade.BuyOrderID,
			trade.SellOrderID,
			trade.BuyBrokerID,
			trade.SellBrokerID,
			trade.BuyShareholderID,
			trade.SellShareholderID,
			trade.TradedAt,
		)
	}

	query, args, err := queryBuilder.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *TradeRepository) GetByISIN(ctx context.Context, isin string, limit uint64) ([]entity.Trade, error) {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.Trade{}.TableName()).
		Where(sq.Eq{"isin": isin}).
		OrderBy("traded_at desc").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}

	var trades []entity.Trade
	err = r.db.SelectContext(ctx, &trades, query, args...)
	if err != nil {
		return nil, err
	}

	return trades, nil
}

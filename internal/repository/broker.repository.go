package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/matching-engine/internal/entity"
)

type BrokerRepository struct {
	db *sqlx.DB
}

func NewBrokerRepository(db *sqlx.DB) *BrokerRepository {
	return &BrokerRepository{db: db}
}

func (r *BrokerRepository) GetAll(ctx context.Context) ([]entity.Broker, error) {
	var brokers []entity.Broker
	err := r.db.SelectContext(ctx, &brokers, "SELECT * FROM brokers ORDER BY id")
	if err != nil {
		return nil, err
	}
	return brokers, nil
}

// UpdateCredits writes every broker credit in one transaction.
func (r *BrokerRepository) UpdateCredits(ctx context.Context, brokers []entity.Broker) error {
	if len(brokers) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, broker := range brokers {
		query, args, err := sq.StatementBuilder.
			PlaceholderFormat(sq.Dollar).
			Update(broker.TableName()).
			Set("credit", broker.Credit).
			Set("updated_at", broker.UpdatedAt).
			Where(sq.Eq{"id": broker.ID}).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update broker %d credit: %w", broker.ID, err)
		}
	}

	return tx.Commit()
}

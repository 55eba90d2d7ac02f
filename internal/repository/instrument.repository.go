package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/fx-stream-service/internal/entity"
)

type InstrumentRepository struct {
	db *sqlx.DB
}

func NewInstrumentRepository(db *sqlx.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) GetAllActive(ctx context.Context) (entity.InstrumentCatalog, error) {
	var instruments []entity.Instrument
	err := r.db.SelectContext(ctx, &instruments, "SELECT * FROM instruments WHERE is_active = true order by symbol asc")
	if err != nil {
		return nil, err
	}

	catalog := make(entity.InstrumentCatalog, len(instruments))
	for _, instrument := range instruments {
		catalog[entity.NormalizeInstrument(instrument.Symbol)] = instrument
	}

	return catalog, nil
}

func (r *InstrumentRepository) GetBySymbol(ctx context.Context, symbol string) (*entity.Instrument, error) {
	var instrument entity.Instrument
	err := r.db.GetContext(ctx, &instrument, "SELECT * FROM instruments WHERE symbol = $1", entity.NormalizeInstrument(symbol))
	if err != nil {
		return nil, err
	}

	return &instrument, nil
}

func (r *InstrumentRepository) Upsert(ctx context.Context, data *entity.Instrument) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(data.TableName()).
		Columns(
			"id",
			"symbol",
			"base_currency",
			"quote_currency",
			"display_name",
			"is_active",
			"created_at",
			"updated_at",
		).
		Values(
			data.ID,
			data.Symbol,
			data.BaseCurrency,
			data.QuoteCurrency,
			data.DisplayName,
			data.IsActive,
			data.CreatedAt,
			data.UpdatedAt,
		).
		Suffix(`ON CONFLICT (symbol)
DO UPDATE SET
	base_currency = EXCLUDED.base_currency,
	quote_currency = EXCLUDED.quote_currency,
	display_name = EXCLUDED.display_name,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

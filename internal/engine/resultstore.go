package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// ResultStore persists the run's trade log, decision log, and equity curve
// in an in-memory DuckDB database, and exports them as Parquet and JSON.
type ResultStore struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType

	// seq orders the trade log. Insertion order is the execution order, and
	// reading back by seq keeps identical runs byte-identical.
	seq int64
}

func NewResultStore(log *logger.Logger) (*ResultStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to open result database", err)
	}

	store := &ResultStore{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *ResultStore) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			seq BIGINT,
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			price DOUBLE,
			timestamp TIMESTAMP,
			reason TEXT,
			message TEXT,
			strategy_name TEXT,
			position_type TEXT,
			reduce_only BOOLEAN,
			executed_at TIMESTAMP,
			executed_qty DOUBLE,
			executed_price DOUBLE,
			commission DOUBLE,
			slippage DOUBLE,
			pnl DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			timestamp TIMESTAMP,
			symbol TEXT,
			reason TEXT,
			message TEXT,
			strategy_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS equity (
			timestamp TIMESTAMP,
			equity DOUBLE
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create result tables", err)
		}
	}

	return nil
}

// RecordTrade appends one executed trade to the trade log.
func (s *ResultStore) RecordTrade(trade types.Trade) error {
	s.seq++

	_, err := s.sq.
		Insert("trades").
		Columns("seq", "order_id", "symbol", "side", "order_type", "quantity", "price", "timestamp",
			"reason", "message", "strategy_name", "position_type", "reduce_only",
			"executed_at", "executed_qty", "executed_price", "commission", "slippage", "pnl").
		Values(s.seq, trade.Order.OrderID, trade.Order.Symbol, string(trade.Order.Side), string(trade.Order.OrderType),
			trade.Order.Quantity, trade.Order.Price, trade.Order.Timestamp,
			trade.Order.Reason.Reason, trade.Order.Reason.Message, trade.Order.StrategyName,
			string(trade.Order.PositionType), trade.Order.ReduceOnly,
			trade.ExecutedAt, trade.ExecutedQty, trade.ExecutedPrice,
			trade.Commission, trade.Slippage, trade.PnL).
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to record trade", err)
	}

	return nil
}

// RecordRejection appends one risk rejection to the decision log.
func (s *ResultStore) RecordRejection(at time.Time, symbol, strategyName string, reason types.Reason) error {
	_, err := s.sq.
		Insert("rejections").
		Columns("timestamp", "symbol", "reason", "message", "strategy_name").
		Values(at, symbol, reason.Reason, reason.Message, strategyName).
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to record rejection", err)
	}

	return nil
}

// RecordEquityCurve bulk-inserts the final equity curve.
func (s *ResultStore) RecordEquityCurve(curve []types.EquitySample) error {
	for _, sample := range curve {
		_, err := s.sq.
			Insert("equity").
			Columns("timestamp", "equity").
			Values(sample.Time, sample.Equity).
			RunWith(s.db).
			Exec()
		if err != nil {
			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to record equity sample", err)
		}
	}

	return nil
}

// GetAllTrades returns the trade log in execution order.
func (s *ResultStore) GetAllTrades() ([]types.Trade, error) {
	rows, err := s.sq.
		Select("order_id", "symbol", "side", "order_type", "quantity", "price", "timestamp",
			"reason", "message", "strategy_name", "position_type", "reduce_only",
			"executed_at", "executed_qty", "executed_price", "commission", "slippage", "pnl").
		From("trades").
		OrderBy("seq").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var trade types.Trade
		var side, orderType, positionType string

		err := rows.Scan(
			&trade.Order.OrderID, &trade.Order.Symbol, &side, &orderType,
			&trade.Order.Quantity, &trade.Order.Price, &trade.Order.Timestamp,
			&trade.Order.Reason.Reason, &trade.Order.Reason.Message, &trade.Order.StrategyName,
			&positionType, &trade.Order.ReduceOnly,
			&trade.ExecutedAt, &trade.ExecutedQty, &trade.ExecutedPrice,
			&trade.Commission, &trade.Slippage, &trade.PnL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}

		trade.Order.Side = types.PurchaseType(side)
		trade.Order.OrderType = types.OrderType(orderType)
		trade.Order.PositionType = types.PositionType(positionType)
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// Write exports the trade log, decision log, and equity curve as Parquet
// files under path, plus the trade log as JSON for external reporting tools.
func (s *ResultStore) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create output directory", err)
	}

	// Squirrel has no COPY support, raw SQL here.
	exports := map[string]string{
		"trades":     filepath.Join(path, "trades.parquet"),
		"rejections": filepath.Join(path, "rejections.parquet"),
		"equity":     filepath.Join(path, "equity.parquet"),
	}

	for table, target := range exports {
		_, err := s.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target))
		if err != nil {
			return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to export %s to Parquet", table)
		}
	}

	if err := s.writeTradeLogJSON(filepath.Join(path, "trades.json")); err != nil {
		return err
	}

	s.log.Info("exported run results",
		zap.String("path", path))

	return nil
}

// writeTradeLogJSON writes the trade log as indented JSON. Field order and
// formatting are fixed, so identical runs produce byte-identical files.
func (s *ResultStore) writeTradeLogJSON(path string) error {
	trades, err := s.GetAllTrades()
	if err != nil {
		return err
	}

	if trades == nil {
		trades = []types.Trade{}
	}

	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to marshal trade log", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to write trade log", err)
	}

	return nil
}

// Cleanup closes the underlying database.
func (s *ResultStore) Cleanup() error {
	return s.db.Close()
}

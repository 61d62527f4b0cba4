package settler

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-sql-driver/mysql"

	xerrors "IntentLane/internal/errors"
)

// MySQLSettlementStore 使用 MySQL 唯一键持久化结算标记。
type MySQLSettlementStore struct {
	db *sql.DB
}

// NewMySQLSettlementStore 基于已建立的连接池创建存储并初始化表结构。
func NewMySQLSettlementStore(db *sql.DB) (*MySQLSettlementStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	store := &MySQLSettlementStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLSettlementStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS settlement_records (
        intent_id CHAR(66) PRIMARY KEY,
        settled_at BIGINT NOT NULL
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 settlement_records 表失败")
	}
	return nil
}

// MarkFilled 实现 SettlementStore。唯一键冲突（1062）即是并发 fill 的
// 线性化点。
func (s *MySQLSettlementStore) MarkFilled(ctx context.Context, intentID common.Hash) error {
	const stmt = `INSERT INTO settlement_records (intent_id, settled_at) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, intentID.Hex(), time.Now().Unix()); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAlreadyFilled
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入结算标记失败")
	}
	return nil
}

// Filled 实现 SettlementStore。
func (s *MySQLSettlementStore) Filled(ctx context.Context, intentID common.Hash) (bool, error) {
	const stmt = `SELECT 1 FROM settlement_records WHERE intent_id = ?`
	var one int
	if err := s.db.QueryRowContext(ctx, stmt, intentID.Hex()).Scan(&one); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询结算标记失败")
	}
	return true, nil
}

// Close 实现 SettlementStore。连接池由上层统一管理，这里不关闭。
func (s *MySQLSettlementStore) Close() error {
	return nil
}

var _ SettlementStore = (*MySQLSettlementStore)(nil)

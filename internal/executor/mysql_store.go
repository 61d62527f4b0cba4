package executor

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-sql-driver/mysql"

	xerrors "IntentLane/internal/errors"
)

// MySQLExecutionStore 使用 MySQL 唯一键持久化执行标记，
// 让至多一次执行的保证在进程重启后依然成立。
type MySQLExecutionStore struct {
	db *sql.DB
}

// NewMySQLExecutionStore 基于已建立的连接池创建存储并初始化表结构。
func NewMySQLExecutionStore(db *sql.DB) (*MySQLExecutionStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	store := &MySQLExecutionStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLExecutionStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS execution_records (
        intent_id CHAR(66) PRIMARY KEY,
        executed_at BIGINT NOT NULL
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 execution_records 表失败")
	}
	return nil
}

// MarkExecuted 实现 ExecutionStore。唯一键冲突即是线性化点：
// 并发标记同一 intentId 时只有第一条插入成功。
func (s *MySQLExecutionStore) MarkExecuted(ctx context.Context, intentID common.Hash) error {
	const stmt = `INSERT INTO execution_records (intent_id, executed_at) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, intentID.Hex(), time.Now().Unix()); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAlreadyExecuted
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行标记失败")
	}
	return nil
}

// Executed 实现 ExecutionStore。
func (s *MySQLExecutionStore) Executed(ctx context.Context, intentID common.Hash) (bool, error) {
	const stmt = `SELECT 1 FROM execution_records WHERE intent_id = ?`
	var one int
	if err := s.db.QueryRowContext(ctx, stmt, intentID.Hex()).Scan(&one); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行标记失败")
	}
	return true, nil
}

// Close 实现 ExecutionStore。连接池由上层统一管理，这里不关闭。
func (s *MySQLExecutionStore) Close() error {
	return nil
}

var _ ExecutionStore = (*MySQLExecutionStore)(nil)

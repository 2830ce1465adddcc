// Package repository 提供 PostgreSQL 数据访问层，实现 pkg/store 中的接口
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// DB 数据库接口，*database.DB 和 *sql.Tx 都满足
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Scanner 行扫描接口
type Scanner interface {
	Scan(dest ...interface{}) error
}

// TxRunner 能开启事务的数据库
type TxRunner interface {
	Transaction(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error
}

// Transactor 基于数据库事务实现 store.Transactor
type Transactor struct {
	db TxRunner
}

// NewTransactor 创建事务执行器
func NewTransactor(db TxRunner) *Transactor {
	return &Transactor{db: db}
}

// WithinTx 实现 store.Transactor
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return t.db.Transaction(ctx, nil, func(tx *sql.Tx) error {
		return fn(sqlTx{assignments: NewAssignmentRepository(tx)})
	})
}

type sqlTx struct {
	assignments *AssignmentRepository
}

func (t sqlTx) Assignments() store.AssignmentStore { return t.assignments }

// where 拼接查询条件，占位符从 $1 递增
type where struct {
	conditions []string
	args       []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) raw(cond string) {
	w.conditions = append(w.conditions, cond)
}

func (w *where) String() string {
	if len(w.conditions) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conditions, " AND ")
}

// uuidArray 将 UUID 列表转为 pq 数组参数，配合 ::uuid[] 使用
func uuidArray(ids []uuid.UUID) interface{} {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return pq.Array(s)
}

// scanDate 将 DATE 列转为 YYYY-MM-DD
func scanDate(t time.Time) string {
	return model.FormatDate(t)
}

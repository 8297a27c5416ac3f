package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

// DB conexão bun sobre o SQLite embarcado do coletor. Um único handle de
// escrita serializa as mutações, o que casa com o modelo de um escritor por
// dispositivo.
type DB struct {
	SQL *sql.DB
	Bun *bun.DB
}

// Open inicializa o banco local. path ":memory:" é aceito para testes.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("caminho do sqlite é obrigatório")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_foreign_keys=on"
	}

	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("abrir sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(15 * time.Minute)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &DB{SQL: sqldb, Bun: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

// WithTx executa fn numa transação explícita de escrita.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	if db == nil || db.Bun == nil {
		return fmt.Errorf("banco não inicializado")
	}
	return db.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// Close fecha o handle.
func (db *DB) Close() error {
	if db == nil || db.Bun == nil {
		return nil
	}
	return db.Bun.Close()
}

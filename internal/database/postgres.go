package database

import (
	"context"
	"database/sql"
	"time"
)

type PgBoardRepository struct {
	conn *sql.DB
}

func NewPgBoardRepository(dsn string) (*PgBoardRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PgBoardRepository{conn: db}, nil
}

// NewPgBoardRepositoryFromDB wraps an already opened connection pool.
func NewPgBoardRepositoryFromDB(db *sql.DB) *PgBoardRepository {
	return &PgBoardRepository{conn: db}
}

func (db *PgBoardRepository) DB() *sql.DB {
	return db.conn
}

func (db *PgBoardRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgBoardRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

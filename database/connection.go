package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
}

// DSN builds the driver connection string. Times are read and written in UTC.
func (c DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

type Connection struct {
	db *sql.DB
}

func NewConnection(config DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	conn := &Connection{db: db}

	if err := conn.ensureConnection(); err != nil {
		db.Close()
		return nil, err
	}

	return conn, nil
}

// NewConnectionFromDB wraps an already opened handle.
func NewConnectionFromDB(db *sql.DB) *Connection {
	return &Connection{db: db}
}

func (c *Connection) ensureConnection() error {
	for retries := 0; retries < 3; retries++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.db.PingContext(ctx)
		cancel()

		if err == nil {
			return nil
		}

		log.Printf("Database ping failed (attempt %d/3): %v", retries+1, err)
		time.Sleep(time.Second * time.Duration(retries+1))
	}
	return fmt.Errorf("failed to establish database connection after 3 attempts")
}

func (c *Connection) Close() error {
	return c.db.Close()
}

// Ping checks the connection once, without the startup retries.
func (c *Connection) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *Connection) GetDB() *sql.DB {
	return c.db
}

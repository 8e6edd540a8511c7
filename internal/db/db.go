// Package db はMySQL接続の初期化とスキーマ作成を提供します。
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(100) UNIQUE NOT NULL,
		description VARCHAR(240),
		created DATETIME(6) NOT NULL,
		updated DATETIME(6) NOT NULL
	) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS entries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		content MEDIUMTEXT NOT NULL,
		note_id BIGINT NOT NULL,
		created DATETIME(6) NOT NULL,
		updated DATETIME(6) NOT NULL,
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
	) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS entry_images (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(50) UNIQUE NOT NULL,
		storage_path VARCHAR(255) NOT NULL,
		entry_id BIGINT NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
	) ENGINE=InnoDB;`,
	`CREATE TABLE IF NOT EXISTS rendered_documents (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		artifact_name VARCHAR(50) UNIQUE NOT NULL,
		created_at DATETIME(6) NOT NULL,
		note_id BIGINT UNIQUE NOT NULL,
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
	) ENGINE=InnoDB;`,
}

// Open はMySQLに接続し、存在しないテーブルを作成して返します。
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mysql ping failed: %w", err)
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return conn, nil
}

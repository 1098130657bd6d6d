// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Token is one row of the authorizations table.
type Token struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Tokens returns every token as token -> name. It satisfies auth.TokenSource.
func (db *DB) Tokens(ctx context.Context) (map[string]string, error) {
	list, err := db.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, t := range list {
		out[t.Token] = t.Name
	}
	return out, nil
}

// ListTokens returns every token ordered by name.
func (db *DB) ListTokens(ctx context.Context) ([]Token, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT token, name FROM authorizations ORDER BY name, token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.Token, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TokenForName returns the token assigned to name.
func (db *DB) TokenForName(ctx context.Context, name string) (string, bool, error) {
	var tok string
	err := db.conn.QueryRowContext(ctx,
		db.dialect.Rebind(`SELECT token FROM authorizations WHERE name = ?`), name).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up token: %w", err)
	}
	return tok, true, nil
}

// AddToken stores token for name. A name holds at most one token.
func (db *DB) AddToken(ctx context.Context, token, name string) error {
	if _, exists, err := db.TokenForName(ctx, name); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, name)
	}
	if _, err := db.exec(ctx, `INSERT INTO authorizations (token, name) VALUES (?, ?)`, token, name); err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}
	return nil
}

// RevokeToken deletes token.
func (db *DB) RevokeToken(ctx context.Context, token string) error {
	res, err := db.exec(ctx, `DELETE FROM authorizations WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

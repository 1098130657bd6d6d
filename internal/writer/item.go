// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package writer

import (
	"context"

	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/records"
)

// RosterReplace swaps the complete member list of one gym.
type RosterReplace struct {
	GymID   string
	Members []records.Record
}

// Item is one unit of storage work. Exactly one of Rows or Roster is set.
type Item struct {
	Kind records.Kind

	// Rows maps identity to record. An identity appears at most once.
	Rows map[string]records.Record

	Roster *RosterReplace
}

// Len returns the number of rows carried by the item.
func (it Item) Len() int {
	if it.Roster != nil {
		return len(it.Roster.Members)
	}
	return len(it.Rows)
}

// Store is the part of the database the writers use.
type Store interface {
	Upsert(ctx context.Context, schema *records.Schema, rows []records.Record) (database.UpsertResult, error)
	ReplaceRoster(ctx context.Context, gymID string, members []records.Record) error
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists routes, slots, assignments and fleet records with gorm.
package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicate reports a unique index violation, e.g. a second live
// assignment for the same route and departure.
var ErrDuplicate = errors.New("store: duplicate record")

// Instant normalizes timestamps before they reach the database. Everything is
// stored in UTC at second precision so text-backed dialects compare correctly.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

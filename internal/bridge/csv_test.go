/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `id,ruta,hora,fecha,disponible,vehiculo
p1,Ruta Norte,06:30,2025-01-01,true,
p2,Aeropuerto,04:00,2025-01-01,false,v1
p3,Ruta Sur,05:10,2025-01-01,true,
p4,Ruta Sur,05:20,2025-01-02,true,
p5,Ruta Sur,05:40,2025-01-01,false,
`

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, "p1", rows[0].ID)
	assert.Equal(t, "Ruta Norte", rows[0].RouteLabel)
	assert.True(t, rows[0].Available)
	assert.Nil(t, rows[0].VehicleID)

	require.NotNil(t, rows[1].VehicleID)
	assert.Equal(t, "v1", *rows[1].VehicleID)
	assert.False(t, rows[1].Available)
}

func TestParseCSVEmptyAndInvalid(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ParseCSV(strings.NewReader("id,ruta,hora,fecha,disponible\n,Ruta Sur,05:00,2025-01-01,true\n"))
	assert.ErrorContains(t, err, "missing id")

	_, err = ParseCSV(strings.NewReader("id,ruta,hora,fecha,disponible\np1,Ruta Sur,05:00,2025-01-01,maybe\n"))
	assert.Error(t, err)
}

func TestCSVFeedFiltersByDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programados.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))
	feed := NewCSVFeed(path)
	ctx := context.Background()

	available, err := feed.ListAvailableForDay(ctx, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, available, 2)
	assert.Equal(t, "p3", available[0].ID, "ordered by hour")
	assert.Equal(t, "p1", available[1].ID)

	assigned, err := feed.ListAssignedForDay(ctx, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "p2", assigned[0].ID)
}

func TestCSVFeedDrivesBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programados.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	b := New(NewCSVFeed(path), catalog(), nil, nil, zerolog.Nop())
	slots, err := b.PseudoSlots(context.Background(), "2025-01-01")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "ext-p3", slots[0].ID)
	assert.Equal(t, "r-south", slots[0].RouteID)
}

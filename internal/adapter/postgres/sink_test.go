package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/domain"
)

func TestInsertSQLCoversCanonicalSchema(t *testing.T) {
	sql := insertSQL("observations")

	assert.Contains(t, sql, "INSERT INTO observations")
	assert.Contains(t, sql, "dataset, country, station_id, observed_at, tmax_c, tmin_c, temp_c, dew_point_c, pressure_hpa, wind_speed_ms, prcp_mm")
	assert.Contains(t, sql, "$11")
	assert.NotContains(t, sql, "$12")
	assert.Contains(t, sql, "ON CONFLICT (dataset, station_id, observed_at) DO NOTHING")
}

func TestSchemaSQLDeclaresEveryCanonicalField(t *testing.T) {
	sql := schemaSQL("observations")
	for _, field := range domain.CanonicalFields {
		assert.Contains(t, sql, string(field)+" double precision")
	}
	assert.Contains(t, sql, "PRIMARY KEY (dataset, station_id, observed_at)")
}

func TestRowArgsMapsMissingToNil(t *testing.T) {
	unit := domain.WorkUnit{
		Dataset:   domain.DatasetGSOD,
		Country:   "ZA",
		StationID: "686160-99999",
		Year:      1994,
	}
	rec := domain.NewCanonicalRecord("686160-99999", domain.ObsTime{Year: 1994, Month: 3, Day: 15})
	tmax := 28.5
	rec.Values[domain.FieldTmaxC] = &tmax

	args := rowArgs(unit, rec)
	require.Len(t, args, 11)

	assert.Equal(t, "gsod", args[0])
	assert.Equal(t, "ZA", args[1])
	assert.Equal(t, "686160-99999", args[2])
	assert.Equal(t, time.Date(1994, 3, 15, 0, 0, 0, 0, time.UTC), args[3])
	require.IsType(t, (*float64)(nil), args[4])
	assert.Equal(t, 28.5, *args[4].(*float64))
	assert.Nil(t, args[5], "missing fields insert as NULL")
}

func TestNewSinkRejectsBadTableName(t *testing.T) {
	_, err := NewSink(context.Background(), "postgres://localhost/x", "observations; DROP TABLE", 100, nil, nil)
	require.Error(t, err)
}

package stations

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxarchive/station-etl/internal/registry"
)

const historyHeader = `"USAF","WBAN","STATION NAME","CTRY","STATE","ICAO","LAT","LON","ELEV(M)","BEGIN","END"` + "\n"

func TestParseISDInventoryFiltersAndMaps(t *testing.T) {
	payload := historyHeader +
		`"686160","99999","BLOEMFONTEIN AIRPORT","SF","","FABL","-29.100","+26.302","+1354.0","19400101","20250801"` + "\n" +
		`"672150","99999","BEIRA","MZ","","FQBR","-19.800","+34.900","+0016.0","19430101","20240301"` + "\n" +
		`"725030","14732","LA GUARDIA AIRPORT","US","NY","KLGA","+40.779","-73.880","+0003.4","19350101","20250801"` + "\n"

	list, err := parseISDInventory([]byte(payload), registry.Default())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "686160-99999", list[0].ID)
	assert.Equal(t, "68616099999", list[0].FileID)
	assert.Equal(t, "ZA", list[0].Country, "history codes South Africa as SF")
	assert.Equal(t, "BLOEMFONTEIN AIRPORT", list[0].Name)
	assert.InDelta(t, -29.1, list[0].Latitude, 1e-9)
	assert.InDelta(t, 26.302, list[0].Longitude, 1e-9)
	assert.InDelta(t, 1354.0, list[0].Elevation, 1e-9)

	assert.Equal(t, "672150-99999", list[1].ID)
	assert.Equal(t, "MZ", list[1].Country)
}

func TestParseISDInventoryDropsStationsEndingBeforeRange(t *testing.T) {
	payload := historyHeader +
		`"680100","99999","OLD STATION","SF","","","-29.000","+26.000","+1000.0","19200101","19551231"` + "\n" +
		`"686160","99999","BLOEMFONTEIN AIRPORT","SF","","FABL","-29.100","+26.302","+1354.0","19400101","20250801"` + "\n"

	list, err := parseISDInventory([]byte(payload), registry.Default())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "686160-99999", list[0].ID)
}

func TestParseISDInventorySkipsRowsMissingIdentifiers(t *testing.T) {
	payload := historyHeader +
		`"","99999","NO USAF","SF","","","-29.000","+26.000","+1000.0","19800101","20250801"` + "\n" +
		`"686160","","NO WBAN","SF","","","-29.000","+26.000","+1000.0","19800101","20250801"` + "\n" +
		`"686160","99999","KEPT","SF","","","-29.000","+26.000","+1000.0","19800101","20250801"` + "\n" +
		`"680100","99999","NO END","SF","","","-29.000","+26.000","+1000.0","19800101",""` + "\n"

	list, err := parseISDInventory([]byte(payload), registry.Default())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "KEPT", list[0].Name)
}

func TestParseISDInventoryRequiresColumns(t *testing.T) {
	payload := `"USAF","WBAN","STATION NAME","STATE"` + "\n" +
		`"686160","99999","BLOEMFONTEIN AIRPORT",""` + "\n"

	_, err := parseISDInventory([]byte(payload), registry.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CTRY")
}

// masterLine lays out one master-list line with the latitude column left
// as a caller-supplied string so malformed values can be injected.
func masterLine(id, lat string, lon, elev float64, state, name string) string {
	return fmt.Sprintf("%-11s %8s %9.4f %6.1f %-2s %-30s\n", id, lat, lon, elev, state, name)
}

func TestParseGHCNDInventoryNoMatchesIsAnError(t *testing.T) {
	line := masterLine("USW00094728", "40.7789", -73.9692, 39.6, "NY", "NEW YORK CNTRL PK TWR")
	_, err := parseGHCNDInventory([]byte(line), []string{"ZA"})
	require.Error(t, err)
}

func TestParseGHCNDInventorySkipsMalformedCoordinates(t *testing.T) {
	good := masterLine("ZA000068262", "-25.7333", 28.1833, 1330.0, "", "PRETORIA")
	bad := masterLine("ZA000068263", "badlat", 28.1833, 1330.0, "", "BETHAL")

	list, err := parseGHCNDInventory([]byte(good+bad), []string{"ZA"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ZA000068262", list[0].ID)
}

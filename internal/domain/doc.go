// Package domain models station climate-archive observations.
//
// # Data Source
//
// Observations come from a public climate archive that publishes the same
// station network under several historical collections ("datasets"), each
// with its own file layout, unit conventions, and missing-value sentinels.
// Four collections are ingested:
//
//	ghcnd          daily observations, fixed-width, one file per station
//	gsod           daily summaries, CSV, one file per station-year
//	isd_lite       hourly observations, fixed-width, one file per station-year
//	normals_daily  daily climate normals, CSV, one file per station
//
// # Archive Conventions
//
// Fixed-width daily (ghcnd):
//
//	One line per station-month-element. Columns 1-11 station ID, 12-15 year,
//	16-17 month, 18-21 element code (TMAX, TMIN, PRCP, ...), then 31 packed
//	day slots of value(5) + measurement flag(1) + quality flag(1) + source
//	flag(1). Values are integers in tenths of the element's unit (tenths of
//	°C for temperatures, tenths of mm for precipitation). -9999 marks a day
//	with no observation; months shorter than 31 days pad the tail with it.
//	A non-blank quality flag means the value failed a quality-assurance
//	check and must not be used.
//
// Daily summaries CSV (gsod):
//
//	Header row names the columns; column order varies across archive
//	vintages, so columns are located by name, never by position. Units are
//	US conventional: temperatures in °F, wind in knots, precipitation in
//	inches, pressure in millibars. Missing values are column-specific
//	sentinels: 9999.9 (temperatures, pressure), 999.9 (wind), 99.99
//	(precipitation).
//
// Hourly fixed-width (isd_lite):
//
//	Space-padded columns: year, month, day, hour, then air temperature, dew
//	point, sea-level pressure, wind direction, wind speed, sky condition,
//	and one- and six-hour precipitation. All measured fields are scaled by
//	ten; -9999 marks missing. Hours are UTC.
//
// Daily normals CSV (normals_daily):
//
//	Long format: station, date (MM-DD), element, value. Temperature normals
//	are in tenths of °F, precipitation normals in hundredths of inches,
//	covering a fixed multi-decade reference period. The registry's nominal
//	year (a leap year, so Feb 29 normals survive validation) supplies the
//	missing year component.
//
// # Missing Values
//
// Canonical records represent a missing measurement as a nil *float64,
// never as zero: 0.0 mm of precipitation is an observation, the nil is the
// absence of one. Native sentinels are mapped to nil by the normalizer;
// parsers pass them through untouched so that sentinel literals live in
// exactly one place, the dataset registry.
//
// # Timestamps
//
// ObsTime carries raw integer date components rather than a time.Time so
// that impossible dates read from corrupt fixed-width offsets (day 32,
// April 31) survive parsing and are rejected by the normalizer's calendar
// validation with a ValidationError, instead of being silently normalized
// by time.Date.
package domain

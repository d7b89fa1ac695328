// Package domain turns gridded ocean-surface wind analyses into per-location
// time-series documents classified by ocean basin.
//
// # Data Source
//
// The Cross-Calibrated Multi-Platform (CCMP) wind product from Remote Sensing
// Systems is distributed as NetCDF files at https://data.remss.com/ccmp/. Two
// flavours are ingested:
//
//	raw     one file per day, 4 six-hourly timesteps, variables
//	        uwnd, vwnd, ws, nobs laid out as (latitude, longitude, time)
//	weekly  one file per year of weekly means, variables uwnd, vwnd, ws with
//	        companion <name>_nobs counts laid out as (time, latitude, longitude)
//
// Both share a 0.25° grid: latitudes -78.375..78.375, longitudes
// 0.125..359.875. Times are CF offsets, e.g. "hours since 1987-01-01 00:00:00".
//
// # Coordinates
//
// Longitudes arrive on [0, 360) and are folded onto (-180, 180] by
// [NormalizeLongitude] before any lookup or storage.
//
// # Basins
//
// Basin ids come from a separate 1° classification grid (basinmask_01.nc,
// variable BASIN_TAG) whose cell centers sit on half degrees. The first cell
// center is (-179.5, -77.5). The data grid and the basin grid never share
// indexing: [BasinGrid.Classify] brackets a point by its four nearest cell
// centers and takes the closest. Corners are enumerated bottom-left, top-left,
// top-right, bottom-right and a later corner replaces the running best only if
// it is strictly closer, so boundary points resolve to the earliest corner.
//
// # Missing Data
//
// Raw files mark missing samples with NaN. Under [JointNaNPolicy] a timestep
// is dropped only when every tracked variable is NaN there; otherwise all
// variables keep the timestep and NaNs are stored as-is.
//
// Weekly means mark missing samples with the sentinel -999.9 and report how
// many of the 28 six-hourly periods in the week were observed. Under
// [QualityGatedPolicy] a mean is kept only when it is not the sentinel and
// its count is exactly the full window; anything else becomes NaN for that
// variable alone. A location is emitted only if every variable has at least
// one kept value.
//
// # Identity
//
// A location's id is "<lon>_<lat>" with the normalized longitude and the raw
// grid latitude in shortest round-trip decimal form, e.g. "-0.125_-78.375".
// Geolocation follows GeoJSON order: [longitude, latitude].
package domain

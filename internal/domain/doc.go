// Package domain models positioned datasets: tables whose rows carry a unique
// key and a (row, column) position, such as the periodic table of elements or
// a set of weather stations laid out on a dashboard.
//
// # Data Source
//
// Rows arrive as loosely typed field maps ([RawRow]) from a CSV or JSON file.
// The field names are configurable through [FieldMap]; the defaults follow the
// elements.csv layout used by the periodic table viewer:
//
//	Symbol         key, compared case-insensitively ("he" finds "He")
//	Period         grid row, 1..7 for the main table, 8..10 for the f-block rows
//	Group          grid column, 1..18
//	Phase          display category ("Noble Gas" → "noble-gas")
//	Atomic_Number  primary sort key
//
// Every other field is carried through untouched in [Record.Attributes].
//
// # Normalization
//
// [Normalize] coerces the row and column fields to integers. Integers,
// integer-valued floats and numeric strings ("3", " 3 ", "3.0") are accepted;
// fractional values, booleans, blanks and missing fields are not. Rejected rows
// are never dropped silently: each one comes back as a [Rejection] carrying the
// original row and the offending field.
//
// # Layout
//
// [Build] places normalized records into a sparse [Grid]. The first record to
// claim a cell keeps it; later claimants are reported as collisions. Because
// [Normalize] fixes the order, the outcome is reproducible for identical input
// and [Grid.Fingerprint] is stable across runs.
//
// A built Grid is never mutated. Reloading data means building a new one.
package domain

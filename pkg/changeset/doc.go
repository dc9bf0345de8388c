// Package changeset extracts change identity from the header comment block of
// a SQL change script.
//
// The header is the run of blank and "--" comment lines at the top of the
// file. Three labels are recognised there, in any order:
//
//	--changeset alice:add-events-table context:2024.06
//	--comment: initial_events_table
//	--labels: DATA-1234
//
// Values are whitespace-delimited tokens. Only the single token after a label
// is read; quoting and embedded whitespace are not supported, so a comment of
// "add events table" yields just "add". This is a constraint of the header
// format rather than something the extractor tries to repair.
package changeset

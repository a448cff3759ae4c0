package occ

import "github.com/pingcap-incubator/tinyocc/kv/region"

// overlayCells merges a transaction's own versions of a column with the stored ones. Local versions come first; a
// local delete hides every stored version. At most versions cells are returned.
func overlayCells(local []region.Cell, deleted bool, external []region.Cell, versions int) []region.Cell {
	if versions < 1 {
		versions = 1
	}
	cells := make([]region.Cell, 0, len(local)+len(external))
	cells = append(cells, local...)
	if !deleted {
		cells = append(cells, external...)
	}
	if len(cells) > versions {
		cells = cells[:versions]
	}
	return cells
}

// overlayRow merges a transaction's own view of a row with the stored row. Local puts replace stored cells and
// local deletes remove them. external is not modified.
func overlayRow(external, local map[string]region.Cell, deleted map[string]bool) map[string]region.Cell {
	row := make(map[string]region.Cell, len(external)+len(local))
	for column, cell := range external {
		if !deleted[column] {
			row[column] = cell
		}
	}
	for column, cell := range local {
		row[column] = cell
	}
	return row
}

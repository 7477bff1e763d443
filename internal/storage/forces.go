package storage

import (
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/mbs"
)

// ForceTable is the force history of all links, one column per force value.
type ForceTable struct {
	Header []string    `json:"header"`
	Times  []float64   `json:"times"`
	Rows   [][]float64 `json:"rows"`
}

// ForceTableFromSnapshots flattens the link forces of a snapshot series.
// Columns are named link/index after the first snapshot.
func ForceTableFromSnapshots(snaps []mbs.Snapshot) *ForceTable {
	ft := &ForceTable{}
	if len(snaps) == 0 {
		return ft
	}
	for _, l := range snaps[0].Links {
		for i := range l.Forces {
			ft.Header = append(ft.Header, fmt.Sprintf("%s/%d", l.Name, i))
		}
	}
	for _, s := range snaps {
		row := make([]float64, 0, len(ft.Header))
		for _, l := range s.Links {
			row = append(row, l.Forces...)
		}
		ft.Times = append(ft.Times, s.T)
		ft.Rows = append(ft.Rows, row)
	}
	return ft
}

// Column returns the values of the named column, or nil.
func (ft *ForceTable) Column(name string) []float64 {
	for j, h := range ft.Header {
		if h != name {
			continue
		}
		col := make([]float64, len(ft.Rows))
		for i, row := range ft.Rows {
			if j < len(row) {
				col[i] = row[j]
			}
		}
		return col
	}
	return nil
}

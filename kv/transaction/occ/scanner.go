package occ

import "github.com/pingcap-incubator/tinyocc/kv/region"

// Scanner returns the rows of a region scan with the transaction's own writes merged in. Any scan counts as reading
// the whole region: the transaction conflicts with every transaction that wrote anything.
type Scanner struct {
	coordinator *Coordinator
	id          uint64
	columns     [][]byte
	ts          uint64
	inner       *region.Scanner
}

// Next returns the next row, or a nil row once the scan is exhausted. It fails with ErrUnknownTransaction once the
// transaction is retired.
func (s *Scanner) Next() ([]byte, map[string]region.Cell, error) {
	c := s.coordinator
	for {
		state, err := c.getTransaction(s.id)
		if err != nil {
			return nil, nil, err
		}
		c.mu.Lock()
		state.hasScan = true
		c.mu.Unlock()

		row, cells, err := s.inner.Next()
		if err != nil || row == nil {
			return nil, nil, err
		}

		c.mu.Lock()
		state.addRead(row)
		local, deleted := state.localGetFull(row, s.columns, s.ts)
		c.mu.Unlock()
		cells = overlayRow(cells, local, deleted)
		if len(cells) > 0 {
			return row, cells, nil
		}
	}
}

func (s *Scanner) Close() {
	s.inner.Close()
}

package occ

import (
	"testing"

	"github.com/pingcap-incubator/tinyocc/kv/region"
	"github.com/stretchr/testify/assert"
)

func cell(value string, ts uint64) region.Cell {
	return region.Cell{Value: []byte(value), Timestamp: ts}
}

func TestOverlayCells(t *testing.T) {
	local := []region.Cell{cell("l2", 30), cell("l1", 20)}
	external := []region.Cell{cell("e2", 10), cell("e1", 5)}

	assert.Equal(t, []region.Cell{cell("l2", 30), cell("l1", 20), cell("e2", 10)}, overlayCells(local, false, external, 3))
	assert.Equal(t, []region.Cell{cell("l2", 30)}, overlayCells(local, false, external, 1))
	assert.Equal(t, []region.Cell{cell("l2", 30), cell("l1", 20)}, overlayCells(local, true, external, 5))
	assert.Equal(t, external, overlayCells(nil, false, external, 2))
	assert.Empty(t, overlayCells(nil, true, external, 2))
	assert.Equal(t, []region.Cell{cell("e2", 10)}, overlayCells(nil, false, external, 0))
}

func TestOverlayRow(t *testing.T) {
	external := map[string]region.Cell{
		"cf:a": cell("ea", 1),
		"cf:b": cell("eb", 1),
		"cf:c": cell("ec", 1),
	}
	local := map[string]region.Cell{
		"cf:a": cell("la", 2),
		"cf:d": cell("ld", 2),
	}
	row := overlayRow(external, local, map[string]bool{"cf:b": true})
	assert.Equal(t, map[string]region.Cell{
		"cf:a": cell("la", 2),
		"cf:c": cell("ec", 1),
		"cf:d": cell("ld", 2),
	}, row)
	// The stored row is left alone.
	assert.Len(t, external, 3)
}

func TestLocalGet(t *testing.T) {
	s := newTransactionState(1, 0)
	s.addWrite(region.NewBatchUpdate([]byte("r"), 10).Put([]byte("cf:a"), []byte("v10")))
	s.addWrite(region.NewBatchUpdate([]byte("r"), 20).Delete([]byte("cf:a")))
	s.addWrite(region.NewBatchUpdate([]byte("r"), 30).Put([]byte("cf:a"), []byte("v30")))
	s.addWrite(region.NewBatchUpdate([]byte("other"), 40).Put([]byte("cf:a"), []byte("x")))

	cells, deleted := s.localGet([]byte("r"), []byte("cf:a"), region.LatestTimestamp)
	assert.Equal(t, []region.Cell{cell("v30", 30)}, cells)
	assert.True(t, deleted)

	cells, deleted = s.localGet([]byte("r"), []byte("cf:a"), 15)
	assert.Equal(t, []region.Cell{cell("v10", 10)}, cells)
	assert.False(t, deleted)

	cells, deleted = s.localGet([]byte("r"), []byte("cf:b"), region.LatestTimestamp)
	assert.Empty(t, cells)
	assert.False(t, deleted)

	full, fullDeleted := s.localGetFull([]byte("r"), nil, 25)
	assert.Empty(t, full)
	assert.Equal(t, map[string]bool{"cf:a": true}, fullDeleted)
	full, fullDeleted = s.localGetFull([]byte("r"), nil, region.LatestTimestamp)
	assert.Equal(t, map[string]region.Cell{"cf:a": cell("v30", 30)}, full)
	assert.Empty(t, fullDeleted)
}

func TestHasConflictWith(t *testing.T) {
	reader := newTransactionState(1, 0)
	reader.addRead([]byte("a"))
	writer := newTransactionState(2, 0)
	writer.addWrite(region.NewBatchUpdate([]byte("b"), region.LatestTimestamp).Put([]byte("cf:x"), nil))

	assert.False(t, reader.hasConflictWith(writer))
	writer.addWrite(region.NewBatchUpdate([]byte("a"), region.LatestTimestamp).Put([]byte("cf:x"), nil))
	assert.True(t, reader.hasConflictWith(writer))
	writer.setStatus(Aborted)
	assert.False(t, reader.hasConflictWith(writer))

	scanner := newTransactionState(3, 0)
	scanner.hasScan = true
	other := newTransactionState(4, 0)
	assert.False(t, scanner.hasConflictWith(other))
	other.addWrite(region.NewBatchUpdate([]byte("zzz"), region.LatestTimestamp).Put([]byte("cf:x"), nil))
	assert.True(t, scanner.hasConflictWith(other))
}

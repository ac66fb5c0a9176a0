package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBulkInsertErrorUnwrap(t *testing.T) {
	err := error(&BulkInsertError{
		Inserted: 2,
		Failed:   []RowError{{Index: 1, CoinID: "eth", Err: ErrDuplicateKey}},
	})

	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.Contains(t, err.Error(), "2 inserted, 1 failed")
	assert.Contains(t, err.Error(), "row 1 (eth)")

	var bulk *BulkInsertError
	assert.True(t, errors.As(err, &bulk))
	assert.Equal(t, 2, bulk.Inserted)
}

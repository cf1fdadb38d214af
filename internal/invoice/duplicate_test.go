package invoice

import (
	"testing"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func historyFixture() RecordList {
	return RecordList{
		{ID: 1, OwnerIdentity: "alice", InvoiceNumber: "ZP12345678", Date: "2024/06/06"},
		{ID: 2, OwnerIdentity: "bob", InvoiceNumber: "AB00000001", Date: "2024/01/01"},
		{ID: 3, OwnerIdentity: "alice", InvoiceNumber: entity.SentinelNotRecognized, Date: "2024/06/06"},
		{ID: 4, OwnerIdentity: "alice", InvoiceNumber: "ZP12345678", Date: "2024/06/06"},
	}
}

func TestIsDuplicate(t *testing.T) {
	history := historyFixture()

	t.Run("first match wins", func(t *testing.T) {
		dup, id := IsDuplicate("ZP12345678", "2024/06/06", "alice", history)
		assert.True(t, dup)
		assert.Equal(t, int64(1), id)
	})

	t.Run("scoped by owner", func(t *testing.T) {
		dup, id := IsDuplicate("AB00000001", "2024/01/01", "alice", history)
		assert.False(t, dup)
		assert.Zero(t, id)

		dup, id = IsDuplicate("ZP12345678", "2024/06/06", "bob", history)
		assert.False(t, dup)
		assert.Zero(t, id)
	})

	t.Run("date must match", func(t *testing.T) {
		dup, _ := IsDuplicate("ZP12345678", "2024/06/07", "alice", history)
		assert.False(t, dup)
	})

	t.Run("nil view", func(t *testing.T) {
		dup, id := IsDuplicate("ZP12345678", "2024/06/06", "alice", nil)
		assert.False(t, dup)
		assert.Zero(t, id)
	})
}

func TestIsDuplicate_UnrecognizedNeverMatches(t *testing.T) {
	history := historyFixture()

	for _, number := range []string{"", " ", entity.SentinelNotRecognized, "no", "N/A", "null", "未知"} {
		dup, id := IsDuplicate(number, "2024/06/06", "alice", history)
		assert.False(t, dup, "number %q", number)
		assert.Zero(t, id, "number %q", number)
	}
}

func TestMultiView(t *testing.T) {
	persisted := RecordList{{ID: 10, OwnerIdentity: "alice", InvoiceNumber: "A1", Date: "2024/01/01"}}
	batch := RecordList{{ID: -1, OwnerIdentity: "alice", InvoiceNumber: "B2", Date: "2024/01/02"}}
	view := MultiView{persisted, nil, batch}

	dup, id := IsDuplicate("B2", "2024/01/02", "alice", view)
	assert.True(t, dup)
	assert.Equal(t, int64(-1), id)

	dup, id = IsDuplicate("A1", "2024/01/01", "alice", view)
	assert.True(t, dup)
	assert.Equal(t, int64(10), id)

	dup, _ = IsDuplicate("C3", "2024/01/01", "alice", view)
	assert.False(t, dup)
}

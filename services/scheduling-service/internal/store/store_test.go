package store

import (
	"testing"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys([]LockKey{PartyLock(model.Lawyer(9)), CaseLock(3), PartyLock(model.Citizen(1)), PartyLock(model.Lawyer(9)), ""})
	assert.Equal(t, []LockKey{"case:3", "party:citizen:1", "party:lawyer:9"}, keys)
}

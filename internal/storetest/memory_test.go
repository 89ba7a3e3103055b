package storetest

import (
	"testing"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

func TestMemory_Conformance(t *testing.T) {
	Run(t, func(t *testing.T) domain.HistoryStore {
		return NewMemory()
	})
}

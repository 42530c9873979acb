package memory

import (
	"testing"

	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record/tests"
)

func TestRecordMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}

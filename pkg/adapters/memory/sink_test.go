package memory_test

import (
	"testing"

	"github.com/aretw0/cadloop/pkg/adapters/memory"
	"github.com/aretw0/cadloop/pkg/ports/tests"
)

func TestMemorySink_Contract(t *testing.T) {
	tests.ArtifactSinkContractTest(t, memory.NewSink())
}

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Close()
	assert.EqualError(t, b.Publish(t.Context(), "lmb.deploys.finished", map[string]string{}), "nil bus")
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New("nats://127.0.0.1:1")
	assert.Error(t, err)
}

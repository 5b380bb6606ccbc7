package queue

import (
	"testing"

	// Packages
	assert "github.com/stretchr/testify/assert"
)

func Test_Lock_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("Name", func(t *testing.T) {
		assert.Equal("5:queue6:emails", lockName("queue", "emails"))
		assert.Equal("7:migrate", lockName("migrate"))
		assert.Equal("", lockName())
	})

	t.Run("Distinct", func(t *testing.T) {
		assert.NotEqual(lockName("send", "a.b", "c"), lockName("send", "a", "b.c"))
		assert.NotEqual(lockName("send", "emails", ""), lockName("send", "emails"))
		assert.NotEqual(lockName("queue", "emails"), lockName("send", "emails", ""))
	})
}

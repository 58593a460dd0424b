package github

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.Get("app/models/order.rb")
	assert.False(t, ok)

	c.Set("app/models/order.rb", "class Order\nend")

	content, ok := c.Get("app/models/order.rb")
	assert.True(t, ok)
	assert.Equal(t, "class Order\nend", content)
}

func TestCache_Expires(t *testing.T) {
	c := NewCache(time.Millisecond)
	c.Set("key", "value")

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("key", "value")

	c.Clear()

	_, ok := c.Get("key")
	assert.False(t, ok)
}

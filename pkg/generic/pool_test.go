package generic

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBuffers() *Pool[*bytes.Buffer] {
	return NewPool(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		WithReset(func(b *bytes.Buffer) { b.Reset() }),
		WithKeep(func(b *bytes.Buffer) bool { return b.Cap() <= 1024 }),
		WithWarm[*bytes.Buffer](2),
	)
}

func TestPoolResetsOnPut(t *testing.T) {
	p := newBuffers()

	buf := p.Get()
	buf.WriteString("hello")
	p.Put(buf)
	assert.Zero(t, buf.Len())
	assert.Zero(t, p.Discarded())

	assert.NotNil(t, p.Get())
}

func TestPoolDropsOversizedValues(t *testing.T) {
	p := newBuffers()

	big := p.Get()
	big.Grow(4096)
	big.WriteString("payload")
	p.Put(big)

	assert.Equal(t, uint64(1), p.Discarded())
	assert.Equal(t, "payload", big.String())
}

package enclave

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(size int, b byte) []byte {
	return bytes.Repeat([]byte{b}, size)
}

func TestBoundary_CreateNode(t *testing.T) {
	e := New((&countingFactory{ctrls: []*fakeController{newFakeController("node-cert", "node-quote")}}).build, testLogger())
	b := NewBoundary(context.Background(), e, testLogger())

	cert, quote := filled(64, 0xAA), filled(64, 0xAA)
	certLen, quoteLen := -1, -1

	require.True(t, b.CreateNode(testConfig(), cert, &certLen, quote, &quoteLen, false))
	assert.Equal(t, len("node-cert"), certLen)
	assert.Equal(t, len("node-quote"), quoteLen)
	assert.Equal(t, []byte("node-cert"), cert[:certLen])
	assert.Equal(t, []byte("node-quote"), quote[:quoteLen])
}

func TestBoundary_CreateNodeConflictWritesNothing(t *testing.T) {
	e := New((&countingFactory{ctrls: []*fakeController{newFakeController("node-cert", "node-quote")}}).build, testLogger())
	b := NewBoundary(context.Background(), e, testLogger())

	var certLen, quoteLen int
	require.True(t, b.CreateNode(testConfig(), make([]byte, 64), &certLen, make([]byte, 64), &quoteLen, false))

	cert, quote := filled(64, 0xAA), filled(64, 0xAA)
	certLen2, quoteLen2 := -1, -1
	assert.False(t, b.CreateNode(testConfig(), cert, &certLen2, quote, &quoteLen2, true))
	assert.Equal(t, filled(64, 0xAA), cert)
	assert.Equal(t, filled(64, 0xAA), quote)
	assert.Equal(t, -1, certLen2)
	assert.Equal(t, -1, quoteLen2)
}

func TestBoundary_CreateNodeInsufficientCapacity(t *testing.T) {
	factory := &countingFactory{ctrls: []*fakeController{
		newFakeController("node-cert", "node-quote"),
		newFakeController("node-cert", "node-quote"),
	}}
	e := New(factory.build, testLogger())
	b := NewBoundary(context.Background(), e, testLogger())

	certLen, quoteLen := -1, -1
	assert.False(t, b.CreateNode(testConfig(), make([]byte, 4), &certLen, make([]byte, 64), &quoteLen, false))
	assert.Equal(t, -1, certLen)
	assert.False(t, e.Created())
	assert.False(t, b.TickNode(1, 1))

	assert.True(t, b.CreateNode(testConfig(), make([]byte, 64), &certLen, make([]byte, 64), &quoteLen, false))
	assert.Equal(t, len("node-cert"), certLen)
}

func TestBoundary_CreateNodeMissingLengths(t *testing.T) {
	factory := &countingFactory{ctrls: []*fakeController{newFakeController("c", "q")}}
	b := NewBoundary(context.Background(), New(factory.build, testLogger()), testLogger())

	var quoteLen int
	assert.False(t, b.CreateNode(testConfig(), make([]byte, 8), nil, make([]byte, 8), &quoteLen, false))
	assert.Equal(t, 0, factory.callCount())
}

func TestBoundary_ConcurrentCreateNode(t *testing.T) {
	const callers = 2

	factory := &countingFactory{ctrls: []*fakeController{
		newFakeController("cert-a", "quote-a"),
		newFakeController("cert-b", "quote-b"),
	}}
	b := NewBoundary(context.Background(), New(factory.build, testLogger()), testLogger())

	type result struct {
		ok            bool
		cert, quote   []byte
		certLen, qLen int
	}
	results := make([]result, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		results[i] = result{cert: filled(32, 0xAA), quote: filled(32, 0xAA), certLen: -1, qLen: -1}
		wg.Add(1)
		go func(r *result) {
			defer wg.Done()
			<-start
			r.ok = b.CreateNode(testConfig(), r.cert, &r.certLen, r.quote, &r.qLen, false)
		}(&results[i])
	}
	close(start)
	wg.Wait()

	var winners int
	for _, r := range results {
		if r.ok {
			winners++
			assert.LessOrEqual(t, r.certLen, len(r.cert))
			assert.LessOrEqual(t, r.qLen, len(r.quote))
			assert.Equal(t, "cert-a", string(r.cert[:r.certLen]))
			assert.Equal(t, "quote-a", string(r.quote[:r.qLen]))
		} else {
			assert.Equal(t, filled(32, 0xAA), r.cert)
			assert.Equal(t, filled(32, 0xAA), r.quote)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestBoundary_RunAndTick(t *testing.T) {
	ctrl := newFakeController("c", "q")
	ctrl.runFn = func(ctx context.Context) error { return errors.New("unclean shutdown") }
	e := New((&countingFactory{ctrls: []*fakeController{ctrl}}).build, testLogger())
	b := NewBoundary(context.Background(), e, testLogger())

	assert.False(t, b.RunNode())
	assert.False(t, b.TickNode(1000, 50))
	assert.Empty(t, ctrl.tickCalls())

	var certLen, quoteLen int
	require.True(t, b.CreateNode(testConfig(), make([]byte, 8), &certLen, make([]byte, 8), &quoteLen, false))

	assert.True(t, b.TickNode(1000, 50))
	calls := ctrl.tickCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1000), calls[0].now.Ticks())
	assert.Equal(t, int64(50), calls[0].elapsed.Milliseconds())

	// The node's termination status is propagated unchanged.
	assert.False(t, b.RunNode())
	ctrl.runFn = nil
	assert.True(t, b.RunNode())
}

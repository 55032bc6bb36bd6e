package enclave

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ruteri/tee-enclave-node/interfaces"
)

// fakeController is a NodeController test double recording every delegation.
type fakeController struct {
	mu sync.Mutex

	identity  interfaces.NodeIdentity
	createErr error
	runFn     func(ctx context.Context) error
	tickErr   error

	creates  int
	recovers []bool
	runs     int
	ticks    []tickCall
}

type tickCall struct {
	now     interfaces.TimePoint
	elapsed interfaces.Millis
}

func newFakeController(cert, quote string) *fakeController {
	return &fakeController{identity: interfaces.NodeIdentity{Cert: []byte(cert), Quote: []byte(quote)}}
}

func (f *fakeController) Create(ctx context.Context, recover bool) (interfaces.NodeIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.recovers = append(f.recovers, recover)
	if f.createErr != nil {
		return interfaces.NodeIdentity{}, f.createErr
	}
	return f.identity, nil
}

func (f *fakeController) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	runFn := f.runFn
	f.mu.Unlock()
	if runFn != nil {
		return runFn(ctx)
	}
	return nil
}

func (f *fakeController) Tick(now interfaces.TimePoint, elapsed interfaces.Millis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tickCall{now: now, elapsed: elapsed})
	return f.tickErr
}

func (f *fakeController) tickCalls() []tickCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tickCall(nil), f.ticks...)
}

// countingFactory hands out the given controllers in order and counts calls.
type countingFactory struct {
	mu    sync.Mutex
	calls int
	ctrls []*fakeController
	err   error
}

func (c *countingFactory) build(cfg *interfaces.NodeConfig) (interfaces.NodeController, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	ctrl := c.ctrls[0]
	if len(c.ctrls) > 1 {
		c.ctrls = c.ctrls[1:]
	}
	return ctrl, nil
}

func (c *countingFactory) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *interfaces.NodeConfig {
	return &interfaces.NodeConfig{ServiceName: "test", SubjectName: "node.test"}
}

// stagedController is a fakeController that also implements
// interfaces.StagedNodeController.
type stagedController struct {
	*fakeController

	commitErr error
	prepares  int
	commits   int
}

func (s *stagedController) Prepare(ctx context.Context, recover bool) (interfaces.NodeIdentity, error) {
	s.mu.Lock()
	s.prepares++
	s.mu.Unlock()
	return s.fakeController.Create(ctx, recover)
}

func (s *stagedController) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return s.commitErr
}

package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/source"
)

// fakeStream serves copies of a fixed frame.
type fakeStream struct {
	frame gocv.Mat
}

func newFakeStream(t *testing.T, width, height int) *fakeStream {
	t.Helper()
	frame := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	t.Cleanup(func() { frame.Close() })
	return &fakeStream{frame: frame}
}

func (s *fakeStream) ReadFrame() (*gocv.Mat, error) {
	m := s.frame.Clone()
	return &m, nil
}

func (s *fakeStream) Size() (int, int) { return s.frame.Cols(), s.frame.Rows() }

// recordingSink keeps a copy of the last published frame.
type recordingSink struct {
	mu    sync.Mutex
	count int
	last  gocv.Mat
}

func newRecordingSink(t *testing.T) *recordingSink {
	s := &recordingSink{last: gocv.NewMat()}
	t.Cleanup(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.last.Close()
	})
	return s
}

func (s *recordingSink) Publish(frame *gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	frame.CopyTo(&s.last)
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// sourceLedger records the acquire/release order of every fake source and
// the largest number of simultaneously held sources.
type sourceLedger struct {
	mu        sync.Mutex
	events    []string
	active    int
	maxActive int
	created   []*fakeSource
}

func (l *sourceLedger) record(event string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.active += delta
	if l.active > l.maxActive {
		l.maxActive = l.active
	}
}

func (l *sourceLedger) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *sourceLedger) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *sourceLedger) MaxActive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxActive
}

func (l *sourceLedger) Last() *fakeSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.created) == 0 {
		return nil
	}
	return l.created[len(l.created)-1]
}

// factory returns a SourceFactory producing fake sources. When ready is
// non-nil, sources become ready with it during Acquire.
func (l *sourceLedger) factory(ready source.Stream) SourceFactory {
	return func(kind source.Kind, onSession func(*pairing.Host)) (source.Source, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		src := &fakeSource{
			kind:   kind,
			name:   fmt.Sprintf("%s#%d", kind, len(l.created)+1),
			ledger: l,
			stream: ready,
		}
		l.created = append(l.created, src)
		return src, nil
	}
}

type fakeSource struct {
	kind   source.Kind
	name   string
	ledger *sourceLedger
	stream source.Stream

	mu         sync.Mutex
	onReady    source.ReadyFunc
	onFail     func(error)
	cleanup    func()
	ready      bool
	acquired   bool
	released   bool
	err        error
	acquireErr error
}

func (f *fakeSource) Kind() source.Kind { return f.kind }

func (f *fakeSource) Acquire(ctx context.Context, onReady source.ReadyFunc) error {
	f.mu.Lock()
	f.acquired = true
	f.onReady = onReady
	err := f.acquireErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.ledger.record("acquire "+f.name, 1)
	if f.stream != nil {
		f.fire()
	}
	return nil
}

// fire announces readiness, ignoring the released guard a real source
// applies, so the controller's own guard is exercised.
func (f *fakeSource) fire() {
	f.mu.Lock()
	onReady, stream := f.onReady, f.stream
	f.mu.Unlock()

	cleanup := onReady(stream)

	f.mu.Lock()
	f.ready = true
	f.cleanup = cleanup
	f.mu.Unlock()
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	hook := f.onFail
	f.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func (f *fakeSource) Release() error {
	f.mu.Lock()
	if f.released || !f.acquired || f.acquireErr != nil {
		f.released = true
		f.mu.Unlock()
		return nil
	}
	f.released = true
	f.ready = false
	cleanup := f.cleanup
	f.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	f.ledger.record("release "+f.name, -1)
	return nil
}

func (f *fakeSource) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSource) Stream() source.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil
	}
	return f.stream
}

func (f *fakeSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) OnFailure(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFail = fn
}

func (f *fakeSource) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

package server

import (
	"context"
	"sync"

	"github.com/ayusman/fingerglow/internal/app"
	"github.com/ayusman/fingerglow/internal/source"
)

type fakeController struct {
	mu       sync.Mutex
	status   app.Status
	url      string
	observer func(app.Status)
	switches []source.Kind
}

func newFakeController(st app.Status) *fakeController {
	return &fakeController{status: st}
}

func (c *fakeController) Status() app.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) Switch(ctx context.Context, kind source.Kind) error {
	c.mu.Lock()
	c.switches = append(c.switches, kind)
	c.status.Source = kind.String()
	c.mu.Unlock()
	return nil
}

func (c *fakeController) PairingURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *fakeController) OnStatus(fn func(app.Status)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *fakeController) switched() []source.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]source.Kind(nil), c.switches...)
}

// set replaces the status and notifies the observer.
func (c *fakeController) set(st app.Status, url string) {
	c.mu.Lock()
	c.status = st
	c.url = url
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

package catalog

import (
	"context"
	"sync"

	"github.com/mcpchat/mcpchat/internal/chat"
)

// Cache memoizes tool catalogs for the lifetime of one session. At most one
// fetch is in flight per server; concurrent lookups for the same server wait
// on that fetch. Failed fetches are not cached, so a server that was down at
// selection time is retried on the next turn.
type Cache struct {
	lister ToolLister

	mu       sync.Mutex
	entries  map[string][]chat.ToolDefinition
	inflight map[string]*fetch
}

type fetch struct {
	done  chan struct{}
	tools []chat.ToolDefinition
	err   error
}

// NewCache creates a cache over the given lister.
func NewCache(lister ToolLister) *Cache {
	return &Cache{
		lister:   lister,
		entries:  make(map[string][]chat.ToolDefinition),
		inflight: make(map[string]*fetch),
	}
}

// Tools returns the cached catalog for server, fetching it on first use.
func (c *Cache) Tools(ctx context.Context, server chat.ToolServer) ([]chat.ToolDefinition, error) {
	c.mu.Lock()
	if tools, ok := c.entries[server.Name]; ok {
		c.mu.Unlock()
		return tools, nil
	}
	if f, ok := c.inflight[server.Name]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.tools, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &fetch{done: make(chan struct{})}
	c.inflight[server.Name] = f
	c.mu.Unlock()

	f.tools, f.err = c.lister.ListTools(ctx, server)
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, server.Name)
	if f.err == nil {
		c.entries[server.Name] = f.tools
	}
	c.mu.Unlock()

	return f.tools, f.err
}

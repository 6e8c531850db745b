package video

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"camstream/video/source"
)

// Registry lazily starts one Fetcher per source URI and keeps it running for
// the life of the process.
type Registry struct {
	Opener  source.Opener
	Options FetcherOptions
	// Listeners are attached to every fetcher the registry creates.
	Listeners []FetcherListener

	mu       sync.Mutex
	fetchers map[string]*Fetcher
	stopped  bool
}

func NewRegistry(opener source.Opener, opts FetcherOptions) *Registry {
	return &Registry{
		Opener:   opener,
		Options:  opts,
		fetchers: make(map[string]*Fetcher),
	}
}

// Get returns the fetcher for src, creating and starting it on first use or
// when the previous one has exited. After StopAll it returns nil.
func (r *Registry) Get(src source.Source) *Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	if f, ok := r.fetchers[src.URI]; ok {
		select {
		case <-f.Done():
			log.WithField("source", src.String()).Info("Replacing exited fetcher")
		default:
			return f
		}
	}
	f := NewFetcher(src, r.Opener, r.Options)
	f.Listeners = append(f.Listeners, r.Listeners...)
	r.fetchers[src.URI] = f
	log.WithField("source", src.String()).Info("Registered new source")
	f.Start(true)
	return f
}

// Fetchers returns the running fetchers ordered by name.
func (r *Registry) Fetchers() []*Fetcher {
	r.mu.Lock()
	out := make([]*Fetcher, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		out = append(out, f)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Source.String() < out[j].Source.String()
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fetchers)
}

// StopAll stops every fetcher concurrently and waits for them to exit.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.stopped = true
	fetchers := make([]*Fetcher, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		fetchers = append(fetchers, f)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, f := range fetchers {
		wg.Add(1)
		go func(f *Fetcher) {
			defer wg.Done()
			f.Stop()
		}(f)
	}
	wg.Wait()
	if len(fetchers) > 0 {
		log.Infof("Stopped %d sources", len(fetchers))
	}
}

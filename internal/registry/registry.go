// Package registry fetches the remote filename lists used to classify model files.
package registry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultCacheTTL  = time.Hour
	DefaultCacheSize = 16

	// DefaultConcurrency bounds parallel list downloads
	DefaultConcurrency = 2
)

// Set is a parsed filename list
type Set map[string]struct{}

func (s Set) Has(filename string) bool {
	_, ok := s[filename]
	return ok
}

// Parse reads one filename per line. Surrounding whitespace is trimmed and blank
// lines or lines starting with # are ignored.
func Parse(r io.Reader) (Set, error) {
	set := Set{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// Registry maps filenames to kinds. A nil Registry knows nothing.
type Registry struct {
	Models      Set
	Loras       Set
	ControlNets Set
	Embeddings  Set
}

// Lookup checks the lists in the order models, loras, controlnets, embeddings.
func (r *Registry) Lookup(filename string) (models.Kind, bool) {
	if r == nil {
		return "", false
	}

	switch {
	case r.Models.Has(filename):
		return models.KindModel, true
	case r.Loras.Has(filename):
		return models.KindLora, true
	case r.ControlNets.Has(filename):
		return models.KindControl, true
	case r.Embeddings.Has(filename):
		return models.KindEmbedding, true
	}
	return "", false
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Models) + len(r.Loras) + len(r.ControlNets) + len(r.Embeddings)
}

// Sources holds the URL of each list; empty URLs are skipped
type Sources struct {
	Models      string
	Loras       string
	ControlNets string
	Embeddings  string
}

func (s Sources) Empty() bool {
	return s.Models == "" && s.Loras == "" && s.ControlNets == "" && s.Embeddings == ""
}

// Fetcher downloads lists over HTTP and caches each parsed list by URL.
type Fetcher struct {
	client *http.Client
	cache  *expirable.LRU[string, Set]
	log    log.LoggerService
}

func NewFetcher(timeout, ttl time.Duration, size int, logger log.LoggerService) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  expirable.NewLRU[string, Set](size, nil, ttl),
		log:    logger,
	}
}

// Load fetches every configured list concurrently. A list that cannot be fetched
// or parsed stays empty. Its error is returned, in list order, alongside the
// partial registry; the other fetches are not cancelled.
func (f *Fetcher) Load(ctx context.Context, src Sources) (*Registry, []error) {
	reg := &Registry{}
	lists := []struct {
		name string
		url  string
		dst  *Set
	}{
		{"models", src.Models, &reg.Models},
		{"loras", src.Loras, &reg.Loras},
		{"controlnets", src.ControlNets, &reg.ControlNets},
		{"embeddings", src.Embeddings, &reg.Embeddings},
	}
	failures := make([]error, len(lists))

	var g errgroup.Group
	g.SetLimit(DefaultConcurrency)
	for i, list := range lists {
		if list.url == "" {
			continue
		}

		g.Go(func() error {
			set, err := f.Fetch(ctx, list.url)
			if err != nil {
				failures[i] = fmt.Errorf("load %s: %w", list.name, err)
				return failures[i]
			}

			f.log.Info("Loaded %d %s from registry", len(set), list.name)
			*list.dst = set
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.log.Warn("Registry is incomplete: %v", err)
	}

	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reg, errs
}

// Fetch returns the parsed list at url, served from cache while fresh.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Set, error) {
	if set, ok := f.cache.Get(url); ok {
		return set, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errdefs.ManifestError{Source: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &errdefs.ManifestError{Source: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errdefs.ManifestError{Source: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	set, err := Parse(resp.Body)
	if err != nil {
		return nil, &errdefs.ManifestError{Source: url, Err: err}
	}

	f.cache.Add(url, set)
	return set, nil
}

// Purge drops every cached list.
func (f *Fetcher) Purge() {
	f.cache.Purge()
}

package layered

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/minio/blake2b-simd"
)

// MakeRoot stores the merged view of the record as a new version, and
// returns its root. Pages already known to cfg.PageCache are not stored
// again.
func (r Record[K, V]) MakeRoot(ctx context.Context, cfg *RemoteConfig, opts *CreateRemoteOptions) (*Root, error) {
	if cfg.StoreImmutablePartsWith == nil {
		return nil, ErrNoPersist
	}
	root := NewRoot(opts)
	entries := r.merged().entries
	if len(entries) == 0 {
		return root, nil
	}
	marshal, _ := cfg.valueCodec()
	logger := cfg.logger()

	var pages []*page[K, V]
	for start := 0; start < len(entries); start += int(root.PageSize) {
		end := min(start+int(root.PageSize), len(entries))
		p := &page[K, V]{
			Keys:   make([]K, 0, end-start),
			Values: make([]V, 0, end-start),
		}
		for _, e := range entries[start:end] {
			p.Keys = append(p.Keys, e.Key)
			p.Values = append(p.Values, e.Value)
		}
		pages = append(pages, p)
	}

	links := make([]string, len(pages))
	s := newStorer(ctx, cfg, logger)
	for i, p := range pages {
		payload, err := encodePage(root.Format, p, marshal)
		if err != nil {
			s.wait()
			return nil, fmt.Errorf("encode page %d: %w", i, err)
		}
		links[i] = s.store(frame(payload), p)
	}
	if err := s.wait(); err != nil {
		return nil, err
	}

	payload, err := encodeManifest(root.Format, &manifest{Pages: links, Size: uint64(len(entries))})
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	blob := frame(payload)
	link := blobName(blob)
	if err := cfg.StoreImmutablePartsWith.Store(ctx, link, blob); err != nil {
		return nil, fmt.Errorf("persist store %s: %w", link, err)
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "stored manifest",
		slog.String("link", link), slog.Int("pages", len(links)), slog.Int("size", len(entries)))
	root.Link = &link
	root.Size = uint64(len(entries))
	return root, nil
}

// LoadRecord loads the version of a record identified by root. The result
// has an empty cache and the entry order of the stored version.
func LoadRecord[K Key, V any](ctx context.Context, root *Root, cfg *RemoteConfig) (Record[K, V], error) {
	if root.Link == nil {
		return Record[K, V]{}, nil
	}
	if cfg.StoreImmutablePartsWith == nil {
		return Record[K, V]{}, ErrNoPersist
	}
	logger := cfg.logger()
	payload, err := loadBlob(ctx, cfg.StoreImmutablePartsWith, *root.Link)
	if err != nil {
		return Record[K, V]{}, fmt.Errorf("load manifest: %w", err)
	}
	m, err := decodeManifest(root.Format, payload)
	if err != nil {
		return Record[K, V]{}, fmt.Errorf("manifest %s: %w", *root.Link, err)
	}
	if m.Size != root.Size {
		return Record[K, V]{}, corruptf("manifest %s has %d entries, root says %d", *root.Link, m.Size, root.Size)
	}
	entries := make([]Entry[K, V], 0, m.Size)
	for _, link := range m.Pages {
		p, err := loadPage[K, V](ctx, cfg, root.Format, link, logger)
		if err != nil {
			return Record[K, V]{}, err
		}
		for i := range p.Keys {
			entries = append(entries, Entry[K, V]{p.Keys[i], p.Values[i]})
		}
	}
	r := FromEntries(entries...)
	if uint64(r.Len()) != m.Size {
		return Record[K, V]{}, corruptf("loaded %d distinct entries, expected %d", r.Len(), m.Size)
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "loaded record",
		slog.String("link", *root.Link), slog.Int("pages", len(m.Pages)), slog.Uint64("size", m.Size))
	return r, nil
}

func loadPage[K Key, V any](ctx context.Context, cfg *RemoteConfig, format Format, link string, logger *slog.Logger) (*page[K, V], error) {
	if cfg.PageCache != nil {
		if cached, ok := cfg.PageCache.Get(link); ok {
			if p, ok := cached.(*page[K, V]); ok {
				logger.LogAttrs(ctx, slog.LevelDebug, "page cache hit", slog.String("link", link))
				return p, nil
			}
		}
	}
	payload, err := loadBlob(ctx, cfg.StoreImmutablePartsWith, link)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	_, unmarshal := cfg.valueCodec()
	p, err := decodePage[K, V](format, payload, unmarshal)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", link, err)
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "loaded page", slog.String("link", link), slog.Int("entries", len(p.Keys)))
	if cfg.PageCache != nil {
		cfg.PageCache.Add(link, p)
	}
	return p, nil
}

func loadBlob(ctx context.Context, persist Persist, link string) ([]byte, error) {
	blob, err := persist.Load(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", link, err)
	}
	payload, err := unframe(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", link, err)
	}
	return payload, nil
}

// blobName is the content address of a blob.
func blobName(blob []byte) string {
	hash := blake2b.Sum256(blob)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// storer fans Store calls out over a bounded number of goroutines and keeps
// the first error.
type storer struct {
	ctx      context.Context
	persist  Persist
	cache    PageCache
	logger   *slog.Logger
	gate     chan struct{}
	wg       sync.WaitGroup
	l        sync.Mutex
	firstErr error
}

func newStorer(ctx context.Context, cfg *RemoteConfig, logger *slog.Logger) *storer {
	return &storer{
		ctx:     ctx,
		persist: cfg.StoreImmutablePartsWith,
		cache:   cfg.PageCache,
		logger:  logger,
		gate:    make(chan struct{}, cfg.storeConcurrency()),
	}
}

// store names the blob and schedules it to be persisted, unless the cache
// says it already has been.
func (s *storer) store(blob []byte, decoded any) string {
	link := blobName(blob)
	if s.cache != nil && s.cache.Contains(link) {
		s.logger.LogAttrs(s.ctx, slog.LevelDebug, "page already stored", slog.String("link", link))
		return link
	}
	if s.failed() {
		return link
	}
	s.gate <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.gate }()
		if s.failed() {
			return
		}
		err := s.persist.Store(s.ctx, link, blob)
		if err != nil {
			s.l.Lock()
			if s.firstErr == nil {
				s.firstErr = fmt.Errorf("persist store %s: %w", link, err)
			}
			s.l.Unlock()
			return
		}
		s.logger.LogAttrs(s.ctx, slog.LevelDebug, "stored page", slog.String("link", link), slog.Int("bytes", len(blob)))
		if s.cache != nil {
			s.cache.Add(link, decoded)
		}
	}()
	return link
}

func (s *storer) failed() bool {
	s.l.Lock()
	defer s.l.Unlock()
	return s.firstErr != nil
}

func (s *storer) wait() error {
	s.wg.Wait()
	return s.firstErr
}

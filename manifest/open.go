package manifest

import (
	"github.com/chazu/tagview/loader"
	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/store"
	"github.com/chazu/tagview/tag"
)

// OpenStore opens the configured record sources, unioned when there are
// several, behind an LRU cache when cache_size is positive.
func (m *Manifest) OpenStore() (tag.Enumerable, error) {
	sources, err := m.ResolveSources()
	if err != nil {
		return nil, err
	}
	s, err := store.OpenAll(Paths(sources)...)
	if err != nil {
		return nil, err
	}
	if m.Store.CacheSize <= 0 {
		return s, nil
	}
	c, err := store.NewCached(s, m.Store.CacheSize)
	if err != nil {
		store.Close(s)
		return nil, err
	}
	return c, nil
}

// ReaderOptions returns the tag reader options from [reader].
func (m *Manifest) ReaderOptions() ([]tag.ReaderOption, error) {
	endian, err := tag.ParseEndian(m.Reader.Endian)
	if err != nil {
		return nil, err
	}
	regOpts := []tag.RegistryOption{tag.OpaqueWindow(m.Reader.OpaqueWindow)}
	if m.Reader.StrictResources {
		regOpts = append(regOpts, tag.Strict())
	}
	return []tag.ReaderOption{
		tag.WithEndian(endian),
		tag.WithMaxDepth(m.Reader.MaxDepth),
		tag.WithResources(tag.NewResourceRegistry(regOpts...)),
	}, nil
}

// NewReader returns a tag reader over s configured from [reader].
func (m *Manifest) NewReader(s tag.Store) (*tag.Reader, error) {
	opts, err := m.ReaderOptions()
	if err != nil {
		return nil, err
	}
	return tag.NewReader(s, opts...), nil
}

// NewProgramCache returns a program cache sized from [tfx].
func (m *Manifest) NewProgramCache() (*tfx.ProgramCache, error) {
	return tfx.NewProgramCache(m.TFX.ProgramCacheSize)
}

// NewPool returns a load pool sized from [loader].
func (m *Manifest) NewPool() *loader.Pool {
	return loader.New(m.Loader.Workers)
}

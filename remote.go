package layered

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultPageSize is how many entries a stored page normally holds.
const DefaultPageSize = 64

// defaultStoreConcurrency bounds the page stores in flight during MakeRoot.
const defaultStoreConcurrency = 40

// Format selects how pages and manifests are serialized.
type Format uint8

const (
	// JSON encodes pages with encoding/json.
	JSON Format = iota
	// Msgpack encodes pages with github.com/vmihailenco/msgpack/v5.
	Msgpack
	// Protobuf encodes pages in protobuf wire format; values go through
	// RemoteConfig.Marshal.
	Protobuf
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Msgpack:
		return "msgpack"
	case Protobuf:
		return "protobuf"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Persist is the interface for loading and storing serialized pages. The
// given string identity corresponds to the content, which is immutable
// (never modified).
type Persist interface {
	// Store makes the given bytes accessible by the given name.
	Store(context.Context, string, []byte) error
	// Load retrieves the previously-stored bytes by the given name.
	Load(context.Context, string) ([]byte, error)
}

// CreateRemoteOptions sets parameters for a stored version.
type CreateRemoteOptions struct {
	// PageSize, or number of entries per page. 0 means use DefaultPageSize.
	PageSize uint
	// Format of pages and manifest. The zero value is JSON.
	Format Format
}

// RemoteConfig controls how pages are persisted and loaded.
type RemoteConfig struct {
	// StoreImmutablePartsWith is used to store and load serialized pages.
	StoreImmutablePartsWith Persist

	// Marshal encodes values in Protobuf pages, defaults to JSON.
	Marshal func(any) ([]byte, error)

	// Unmarshal decodes values in Protobuf pages, defaults to JSON.
	Unmarshal func([]byte, any) error

	// PageCache caches decoded pages and remembers which pages have been
	// stored. It may be shared across records with the same key and value
	// types.
	PageCache PageCache

	// Logger receives debug traces of stores and loads. Defaults to slog.Default().
	Logger *slog.Logger

	// StoreConcurrency bounds concurrent Store calls. 0 means 40.
	StoreConcurrency int
}

// Root identifies a version of a record whose pages are accessible in the
// persistent store.
type Root struct {
	Link     *string
	Size     uint64
	PageSize uint
	Format   Format
}

// NewRoot returns the root of an empty record that will be stored according
// to opts.
func NewRoot(opts *CreateRemoteOptions) *Root {
	pageSize := uint(DefaultPageSize)
	var format Format
	if opts != nil {
		if opts.PageSize > 0 {
			pageSize = opts.PageSize
		}
		format = opts.Format
	}
	return &Root{nil, 0, pageSize, format}
}

func (cfg *RemoteConfig) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

func (cfg *RemoteConfig) storeConcurrency() int {
	if cfg.StoreConcurrency > 0 {
		return cfg.StoreConcurrency
	}
	return defaultStoreConcurrency
}

func (cfg *RemoteConfig) valueCodec() (func(any) ([]byte, error), func([]byte, any) error) {
	marshal, unmarshal := cfg.Marshal, cfg.Unmarshal
	if marshal == nil {
		marshal = defaultMarshal
	}
	if unmarshal == nil {
		unmarshal = defaultUnmarshal
	}
	return marshal, unmarshal
}

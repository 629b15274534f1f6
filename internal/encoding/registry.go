package encoding

import (
	"errors"
	"fmt"
	"sync"
)

// Codec describes one producible MIME type.
type Codec struct {
	MimeType string
	// Extension of the artifact file, without the dot.
	Extension string
	// Supported reports whether the codec can be opened on this host. Nil
	// means always.
	Supported func() bool
	New       func(Options) (Encoder, error)
}

func (c Codec) supported() bool {
	return c.Supported == nil || c.Supported()
}

// Registry maps MIME types to codecs. It implements Capabilities.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	order  []string
	def    string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds or replaces a codec. The first registered codec becomes the
// default until SetDefault is called.
func (r *Registry) Register(c Codec) {
	c.MimeType = NormalizeMimeType(c.MimeType)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[c.MimeType]; !exists {
		r.order = append(r.order, c.MimeType)
	}
	r.codecs[c.MimeType] = c
	if r.def == "" {
		r.def = c.MimeType
	}
}

// SetDefault selects the fallback codec used when no preferred type is
// usable.
func (r *Registry) SetDefault(mimeType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = NormalizeMimeType(mimeType)
}

// Default returns the fallback MIME type.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// MimeTypes lists the registered types in registration order.
func (r *Registry) MimeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Lookup returns the codec for mimeType.
func (r *Registry) Lookup(mimeType string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[NormalizeMimeType(mimeType)]
	return c, ok
}

// IsTypeSupported implements Capabilities.
func (r *Registry) IsTypeSupported(mimeType string) bool {
	c, ok := r.Lookup(mimeType)
	return ok && c.supported()
}

// Open creates an encoder for mimeType ("" meaning the default). If that
// type is unknown, unsupported or fails to open, the default codec is tried.
// The codec actually opened is returned with the encoder. If nothing can be
// opened the error wraps ErrUnavailable.
func (r *Registry) Open(mimeType string, opts Options) (Encoder, Codec, error) {
	if opts.OnData == nil {
		return nil, Codec{}, errors.New("encoding: Options.OnData is required")
	}

	def := r.Default()
	tried := make([]string, 0, 2)
	if mimeType = NormalizeMimeType(mimeType); mimeType != "" {
		tried = append(tried, mimeType)
	}
	if def != "" && def != mimeType {
		tried = append(tried, def)
	}

	var errs []error
	for _, mt := range tried {
		c, ok := r.Lookup(mt)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s: not registered", mt))
			continue
		case !c.supported():
			errs = append(errs, fmt.Errorf("%s: not supported on this host", mt))
			continue
		}
		enc, err := c.New(opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mt, err))
			continue
		}
		if mt != mimeType && mimeType != "" {
			opts.logger().Warn("falling back to default encoder", "requested", mimeType, "mime", mt, "error", errors.Join(errs...))
		}
		return enc, c, nil
	}
	return nil, Codec{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

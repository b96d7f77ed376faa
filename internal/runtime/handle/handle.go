// Package handle implements the validated-handle registry that guards every
// object crossing the flat boundary.
//
// A Handle is an opaque uint64. Its upper half carries a fixed magic value so
// that random integers and foreign values are rejected before any lookup; the
// lower half is a process-unique sequence. The registry owns a header per live
// handle recording its kind and the object it refers to. A handle is usable
// only while its header is registered, so a destroyed handle is caught even
// though the caller still holds the integer.
package handle

import (
	"reflect"
	"sync"
)

const (
	// Magic tags every live handle and header.
	Magic uint32 = 0xDA7ABE70
	// DestroyedMagic overwrites the header magic once a handle is destroyed.
	DestroyedMagic uint32 = 0xDEADDEAD
)

// Handle is an opaque reference returned across the boundary.
type Handle uint64

func (h Handle) magic() uint32 { return uint32(uint64(h) >> 32) }

// Kind tags the object a handle refers to.
type Kind uint32

// Kind values are stable; gaps are reserved.
const (
	KindLive          Kind = 1
	KindTsSymbolMap   Kind = 3
	KindPitSymbolMap  Kind = 4
	KindDbnFileWriter Kind = 6
	KindMetadata      Kind = 7
	KindLiveBlocking  Kind = 11
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindTsSymbolMap:
		return "ts_symbol_map"
	case KindPitSymbolMap:
		return "pit_symbol_map"
	case KindDbnFileWriter:
		return "dbn_file_writer"
	case KindMetadata:
		return "metadata"
	case KindLiveBlocking:
		return "live_blocking"
	default:
		return "unknown"
	}
}

// Code is the outcome of validating a handle. Non-zero codes are errors.
type Code int32

const (
	Success        Code = 0
	NullHandle     Code = 1
	InvalidMagic   Code = 2
	NotRegistered  Code = 3
	WrongType      Code = 4
	NullWrapperPtr Code = 5
)

func (c Code) Error() string {
	switch c {
	case Success:
		return "Success"
	case NullHandle:
		return "Handle is NULL"
	case InvalidMagic:
		return "Invalid handle magic number (corrupted or invalid handle)"
	case NotRegistered:
		return "Handle not registered (possibly freed or never created)"
	case WrongType:
		return "Handle type mismatch (wrong wrapper type)"
	case NullWrapperPtr:
		return "Wrapper pointer is NULL"
	default:
		return "Unknown validation error"
	}
}

type header struct {
	magic uint32
	kind  Kind
	ptr   any
}

// Registry tracks live handles. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu      sync.Mutex
	seq     uint32
	headers map[Handle]*header
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{headers: make(map[Handle]*header)}
}

// Default is the process-wide registry used by the flat boundary.
var Default = NewRegistry()

// Create registers ptr under kind and returns its handle.
func (r *Registry) Create(kind Kind, ptr any) (Handle, error) {
	if isNil(ptr) {
		return 0, NullWrapperPtr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var h Handle
	for {
		r.seq++
		if r.seq == 0 {
			continue
		}
		h = Handle(uint64(Magic)<<32 | uint64(r.seq))
		if _, taken := r.headers[h]; !taken {
			break
		}
	}
	r.headers[h] = &header{magic: Magic, kind: kind, ptr: ptr}
	return h, nil
}

// Resolve validates h against kind and returns the registered object.
func (r *Registry) Resolve(h Handle, kind Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hdr, code := r.lookupLocked(h, kind)
	if code != Success {
		return nil, code
	}
	return hdr.ptr, nil
}

// Take validates h against kind and unregisters it in the same critical
// section. Of several concurrent Takes on one handle exactly one succeeds.
func (r *Registry) Take(h Handle, kind Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hdr, code := r.lookupLocked(h, kind)
	if code != Success {
		return nil, code
	}
	return r.releaseLocked(h, hdr), nil
}

// Destroy unregisters h regardless of kind and returns the object it owned.
func (r *Registry) Destroy(h Handle) (any, error) {
	if h == 0 {
		return nil, NullHandle
	}
	if h.magic() != Magic {
		return nil, InvalidMagic
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hdr, ok := r.headers[h]
	if !ok {
		return nil, NotRegistered
	}
	return r.releaseLocked(h, hdr), nil
}

// Count reports the number of live handles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.headers)
}

func (r *Registry) lookupLocked(h Handle, kind Kind) (*header, Code) {
	if h == 0 {
		return nil, NullHandle
	}
	if h.magic() != Magic {
		return nil, InvalidMagic
	}
	hdr, ok := r.headers[h]
	if !ok {
		return nil, NotRegistered
	}
	if hdr.magic != Magic {
		return nil, InvalidMagic
	}
	if hdr.kind != kind {
		return nil, WrongType
	}
	if hdr.ptr == nil {
		return nil, NullWrapperPtr
	}
	return hdr, Success
}

// releaseLocked removes the header before invalidating it.
func (r *Registry) releaseLocked(h Handle, hdr *header) any {
	delete(r.headers, h)
	ptr := hdr.ptr
	hdr.magic = DestroyedMagic
	hdr.ptr = nil
	return ptr
}

// Cast resolves h and asserts the object type.
func Cast[T any](r *Registry, h Handle, kind Kind) (T, error) {
	var zero T
	ptr, err := r.Resolve(h, kind)
	if err != nil {
		return zero, err
	}
	v, ok := ptr.(T)
	if !ok {
		return zero, WrongType
	}
	return v, nil
}

// TakeAs is Take followed by a type assertion. A type mismatch leaves the
// handle registered.
func TakeAs[T any](r *Registry, h Handle, kind Kind) (T, error) {
	var zero T
	if _, err := Cast[T](r, h, kind); err != nil {
		return zero, err
	}
	ptr, err := r.Take(h, kind)
	if err != nil {
		return zero, err
	}
	return ptr.(T), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

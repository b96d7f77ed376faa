package handle

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveStub struct{ name string }
type mapStub struct{}

func TestCreateAndCast(t *testing.T) {
	r := NewRegistry()
	obj := &liveStub{name: "a"}

	h, err := r.Create(KindLive, obj)
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, Magic, h.magic())

	got, err := Cast[*liveStub](r, h, KindLive)
	require.NoError(t, err)
	assert.Same(t, obj, got)
	assert.Equal(t, 1, r.Count())
}

func TestValidateRejectsWrongKind(t *testing.T) {
	r := NewRegistry()
	kinds := []Kind{KindLive, KindTsSymbolMap, KindPitSymbolMap, KindDbnFileWriter, KindMetadata, KindLiveBlocking}
	for _, kind := range kinds {
		h, err := r.Create(kind, &liveStub{})
		require.NoError(t, err)

		_, err = r.Resolve(h, kind)
		require.NoError(t, err, "kind %s", kind)

		for _, other := range kinds {
			if other == kind {
				continue
			}
			_, err := r.Resolve(h, other)
			assert.ErrorIs(t, err, WrongType, "%s resolved as %s", kind, other)
		}
	}
}

func TestCastTypeMismatch(t *testing.T) {
	r := NewRegistry()
	h, err := r.Create(KindLive, &mapStub{})
	require.NoError(t, err)

	_, err = Cast[*liveStub](r, h, KindLive)
	assert.ErrorIs(t, err, WrongType)
}

func TestValidationCodes(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve(0, KindLive)
	assert.ErrorIs(t, err, NullHandle)

	_, err = r.Resolve(Handle(0x1234), KindLive)
	assert.ErrorIs(t, err, InvalidMagic)

	forged := Handle(uint64(Magic)<<32 | 99)
	_, err = r.Resolve(forged, KindLive)
	assert.ErrorIs(t, err, NotRegistered)

	_, err = r.Create(KindLive, nil)
	assert.ErrorIs(t, err, NullWrapperPtr)

	var typedNil *liveStub
	_, err = r.Create(KindLive, typedNil)
	assert.ErrorIs(t, err, NullWrapperPtr)
}

func TestCodeMessages(t *testing.T) {
	assert.Equal(t, "Handle is NULL", NullHandle.Error())
	assert.Equal(t, "Invalid handle magic number (corrupted or invalid handle)", InvalidMagic.Error())
	assert.Equal(t, "Handle not registered (possibly freed or never created)", NotRegistered.Error())
	assert.Equal(t, "Handle type mismatch (wrong wrapper type)", WrongType.Error())
	assert.Equal(t, "Wrapper pointer is NULL", NullWrapperPtr.Error())
}

func TestDestroyedHandleIsNotRegistered(t *testing.T) {
	r := NewRegistry()
	obj := &liveStub{}
	h, err := r.Create(KindLive, obj)
	require.NoError(t, err)

	r.mu.Lock()
	hdr := r.headers[h]
	r.mu.Unlock()

	owned, err := r.Destroy(h)
	require.NoError(t, err)
	assert.Same(t, obj, owned)
	assert.Equal(t, DestroyedMagic, hdr.magic)
	assert.Nil(t, hdr.ptr)

	for _, kind := range []Kind{KindLive, KindMetadata} {
		_, err := r.Resolve(h, kind)
		assert.ErrorIs(t, err, NotRegistered)
	}

	_, err = r.Destroy(h)
	assert.ErrorIs(t, err, NotRegistered)
	assert.Zero(t, r.Count())
}

func TestTakeExactlyOnce(t *testing.T) {
	r := NewRegistry()
	h, err := r.Create(KindPitSymbolMap, &mapStub{})
	require.NoError(t, err)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Take(h, KindPitSymbolMap); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.Zero(t, r.Count())
}

func TestTakeAsLeavesHandleOnMismatch(t *testing.T) {
	r := NewRegistry()
	h, err := r.Create(KindMetadata, &mapStub{})
	require.NoError(t, err)

	_, err = TakeAs[*liveStub](r, h, KindMetadata)
	assert.ErrorIs(t, err, WrongType)
	assert.Equal(t, 1, r.Count())

	got, err := TakeAs[*mapStub](r, h, KindMetadata)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Zero(t, r.Count())
}

func TestConcurrentCreateUniqueHandles(t *testing.T) {
	r := NewRegistry()
	const n = 200
	handles := make(chan Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Create(KindMetadata, &mapStub{})
			if err == nil {
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[Handle]bool, n)
	for h := range handles {
		assert.False(t, seen[h], "duplicate handle %x", uint64(h))
		seen[h] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, r.Count())
}

func TestCodeIsError(t *testing.T) {
	var err error = NotRegistered
	var code Code
	require.True(t, errors.As(err, &code))
	assert.EqualValues(t, 3, code)
}

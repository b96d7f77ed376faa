package main

/*
#include <stdlib.h>
#include "livebridge.h"

static inline int32_t lb_invoke_record(lb_record_cb cb, const uint8_t* record, size_t length, uint8_t rtype, void* user_data) {
	return cb(record, length, rtype, user_data);
}

static inline void lb_invoke_error(lb_error_cb cb, const char* message, int32_t code, void* user_data) {
	cb(message, code, user_data);
}

static inline int32_t lb_invoke_metadata(lb_metadata_cb cb, const char* json, size_t length, void* user_data) {
	return cb(json, length, user_data);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/drblury/livebridge/abi"
	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/validate"
)

func recordTrampoline(cb C.lb_record_cb) abi.RecordCallback {
	if cb == nil {
		return nil
	}
	return func(rec []byte, rtype dbn.RType, userData uintptr) error {
		var ptr *C.uint8_t
		if len(rec) > 0 {
			ptr = (*C.uint8_t)(unsafe.Pointer(&rec[0]))
		}
		if rc := C.lb_invoke_record(cb, ptr, C.size_t(len(rec)), C.uint8_t(rtype), unsafe.Pointer(userData)); rc != 0 {
			return fmt.Errorf("record callback returned %d", int32(rc))
		}
		return nil
	}
}

func errorTrampoline(cb C.lb_error_cb) abi.ErrorCallback {
	if cb == nil {
		return nil
	}
	return func(message string, code int32, userData uintptr) {
		cmsg := C.CString(message)
		defer C.free(unsafe.Pointer(cmsg))
		C.lb_invoke_error(cb, cmsg, C.int32_t(code), unsafe.Pointer(userData))
	}
}

func metadataTrampoline(cb C.lb_metadata_cb) abi.MetadataCallback {
	if cb == nil {
		return nil
	}
	return func(payload []byte, userData uintptr) error {
		cjson := C.CString(string(payload))
		defer C.free(unsafe.Pointer(cjson))
		if rc := C.lb_invoke_metadata(cb, cjson, C.size_t(len(payload)), unsafe.Pointer(userData)); rc != 0 {
			return fmt.Errorf("metadata callback returned %d", int32(rc))
		}
		return nil
	}
}

// bytesOf views caller memory as a slice. The slice must not outlive the
// call.
func bytesOf(ptr unsafe.Pointer, n C.size_t) []byte {
	if ptr == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), int(n))
}

// errorBuffer views an error buffer, clamped to the usable maximum.
func errorBuffer(buf *C.char, n C.size_t) []byte {
	if n > abi.MaxErrorBuffer {
		n = abi.MaxErrorBuffer
	}
	return bytesOf(unsafe.Pointer(buf), n)
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// goStrings copies a C string array. Counts above the symbol limit are
// rejected before any element is read.
func goStrings(arr **C.char, count C.size_t) ([]string, error) {
	if count == 0 {
		return nil, nil
	}
	if arr == nil {
		return nil, lberrors.InvalidArgument("symbols", "cannot be null")
	}
	if count > validate.MaxSymbols {
		return nil, lberrors.InvalidArgument("symbols", "count %d exceeds maximum %d", uint64(count), validate.MaxSymbols)
	}
	items := unsafe.Slice(arr, int(count))
	out := make([]string, len(items))
	for i, s := range items {
		if s == nil {
			return nil, lberrors.InvalidArgument("symbols", "symbol at index %d is null", i)
		}
		out[i] = C.GoString(s)
	}
	return out, nil
}

func cbool(v C.int) bool { return v != 0 }

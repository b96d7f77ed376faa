package main

/*
#include "livebridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/drblury/livebridge/abi"
)

func reject(errBuf []byte, err error) C.int32_t {
	abi.WriteError(errBuf, err.Error())
	return C.int32_t(abi.StatusInvalid)
}

//export lb_handle_count
func lb_handle_count() C.size_t {
	return C.size_t(abi.HandleCount())
}

//export lb_live_create
func lb_live_create(credential *C.char, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.LiveCreate(goString(credential), errorBuffer(errBuf, errLen)))
}

//export lb_live_create_ex
func lb_live_create_ex(credential, dataset *C.char, sendTsOut, upgradePolicy, heartbeatSecs C.int, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.LiveCreateEx(goString(credential), goString(dataset), cbool(sendTsOut), int32(upgradePolicy), int32(heartbeatSecs), errorBuffer(errBuf, errLen)))
}

//export lb_live_subscribe
func lb_live_subscribe(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveSubscribe(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_subscribe_from
func lb_live_subscribe_from(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, startNs C.int64_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveSubscribeFrom(uint64(h), goString(dataset), goString(schema), syms, int64(startNs), buf))
}

//export lb_live_subscribe_with_replay
func lb_live_subscribe_with_replay(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveSubscribeWithReplay(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_subscribe_with_snapshot
func lb_live_subscribe_with_snapshot(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveSubscribeWithSnapshot(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_start
func lb_live_start(h C.uint64_t, onRecord C.lb_record_cb, onError C.lb_error_cb, userData unsafe.Pointer, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveStart(uint64(h), recordTrampoline(onRecord), errorTrampoline(onError), uintptr(userData), errorBuffer(errBuf, errLen)))
}

//export lb_live_start_ex
func lb_live_start_ex(h C.uint64_t, onMetadata C.lb_metadata_cb, onRecord C.lb_record_cb, onError C.lb_error_cb, userData unsafe.Pointer, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveStartEx(uint64(h), metadataTrampoline(onMetadata), recordTrampoline(onRecord), errorTrampoline(onError), uintptr(userData), errorBuffer(errBuf, errLen)))
}

//export lb_live_stop
func lb_live_stop(h C.uint64_t) {
	abi.LiveStop(uint64(h))
}

//export lb_live_stop_and_wait
func lb_live_stop_and_wait(h C.uint64_t, timeoutMs C.int32_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveStopAndWait(uint64(h), int32(timeoutMs), errorBuffer(errBuf, errLen)))
}

//export lb_live_destroy
func lb_live_destroy(h C.uint64_t) {
	abi.LiveDestroy(uint64(h))
}

//export lb_live_reconnect
func lb_live_reconnect(h C.uint64_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveReconnect(uint64(h), errorBuffer(errBuf, errLen)))
}

//export lb_live_resubscribe
func lb_live_resubscribe(h C.uint64_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveResubscribe(uint64(h), errorBuffer(errBuf, errLen)))
}

//export lb_live_get_connection_state
func lb_live_get_connection_state(h C.uint64_t) C.int32_t {
	return C.int32_t(abi.LiveConnectionState(uint64(h)))
}

//export lb_live_set_log_level
func lb_live_set_log_level(h C.uint64_t, level C.int32_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveSetLogLevel(uint64(h), int32(level), errorBuffer(errBuf, errLen)))
}

//export lb_live_blocking_create_ex
func lb_live_blocking_create_ex(credential, dataset *C.char, sendTsOut, upgradePolicy, heartbeatSecs C.int, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.LiveBlockingCreateEx(goString(credential), goString(dataset), cbool(sendTsOut), int32(upgradePolicy), int32(heartbeatSecs), errorBuffer(errBuf, errLen)))
}

//export lb_live_blocking_subscribe
func lb_live_blocking_subscribe(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveBlockingSubscribe(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_blocking_subscribe_with_replay
func lb_live_blocking_subscribe_with_replay(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveBlockingSubscribeWithReplay(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_blocking_subscribe_with_snapshot
func lb_live_blocking_subscribe_with_snapshot(h C.uint64_t, dataset, schema *C.char, symbols **C.char, count C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	syms, err := goStrings(symbols, count)
	if err != nil {
		return reject(buf, err)
	}
	return C.int32_t(abi.LiveBlockingSubscribeWithSnapshot(uint64(h), goString(dataset), goString(schema), syms, buf))
}

//export lb_live_blocking_start
func lb_live_blocking_start(h C.uint64_t, metadataBuf *C.char, metadataLen C.size_t, outLen *C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	var n int
	status := abi.LiveBlockingStart(uint64(h), bytesOf(unsafe.Pointer(metadataBuf), metadataLen), &n, errorBuffer(errBuf, errLen))
	if outLen != nil {
		*outLen = C.size_t(n)
	}
	return C.int32_t(status)
}

//export lb_live_blocking_next_record
func lb_live_blocking_next_record(h C.uint64_t, recordBuf *C.uint8_t, recordLen C.size_t, outLen *C.size_t, outRType *C.uint8_t, timeoutMs C.int32_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	buf := errorBuffer(errBuf, errLen)
	if recordBuf == nil || outLen == nil || outRType == nil {
		abi.WriteError(buf, "Output parameters cannot be null")
		return C.int32_t(abi.StatusNotFound)
	}
	var n int
	var rtype uint8
	status := abi.LiveBlockingNextRecord(uint64(h), bytesOf(unsafe.Pointer(recordBuf), recordLen), &n, &rtype, int32(timeoutMs), buf)
	if status == abi.StatusOK {
		*outLen = C.size_t(n)
		*outRType = C.uint8_t(rtype)
	}
	return C.int32_t(status)
}

//export lb_live_blocking_reconnect
func lb_live_blocking_reconnect(h C.uint64_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveBlockingReconnect(uint64(h), errorBuffer(errBuf, errLen)))
}

//export lb_live_blocking_resubscribe
func lb_live_blocking_resubscribe(h C.uint64_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.LiveBlockingResubscribe(uint64(h), errorBuffer(errBuf, errLen)))
}

//export lb_live_blocking_stop
func lb_live_blocking_stop(h C.uint64_t) {
	abi.LiveBlockingStop(uint64(h))
}

//export lb_live_blocking_destroy
func lb_live_blocking_destroy(h C.uint64_t) {
	abi.LiveBlockingDestroy(uint64(h))
}

//export lb_metadata_create
func lb_metadata_create(json *C.char, length C.size_t, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.MetadataCreate(bytesOf(unsafe.Pointer(json), length), errorBuffer(errBuf, errLen)))
}

//export lb_metadata_destroy
func lb_metadata_destroy(h C.uint64_t) {
	abi.MetadataDestroy(uint64(h))
}

//export lb_metadata_create_symbol_map
func lb_metadata_create_symbol_map(h C.uint64_t, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.MetadataCreateSymbolMap(uint64(h), errorBuffer(errBuf, errLen)))
}

//export lb_metadata_create_symbol_map_for_date
func lb_metadata_create_symbol_map_for_date(h C.uint64_t, year C.int, month, day C.uint, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.MetadataCreateSymbolMapForDate(uint64(h), int32(year), uint32(month), uint32(day), errorBuffer(errBuf, errLen)))
}

//export lb_pit_symbol_map_create
func lb_pit_symbol_map_create(errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.PitCreate(errorBuffer(errBuf, errLen)))
}

//export lb_pit_symbol_map_is_empty
func lb_pit_symbol_map_is_empty(h C.uint64_t) C.int32_t {
	return C.int32_t(abi.PitIsEmpty(uint64(h)))
}

//export lb_pit_symbol_map_size
func lb_pit_symbol_map_size(h C.uint64_t) C.size_t {
	return C.size_t(abi.PitSize(uint64(h)))
}

//export lb_pit_symbol_map_find
func lb_pit_symbol_map_find(h C.uint64_t, instrumentID C.uint32_t, symbolBuf *C.char, symbolLen C.size_t) C.int32_t {
	return C.int32_t(abi.PitFind(uint64(h), uint32(instrumentID), bytesOf(unsafe.Pointer(symbolBuf), symbolLen)))
}

//export lb_pit_symbol_map_on_record
func lb_pit_symbol_map_on_record(h C.uint64_t, record *C.uint8_t, length C.size_t) C.int32_t {
	return C.int32_t(abi.PitOnRecord(uint64(h), bytesOf(unsafe.Pointer(record), length)))
}

//export lb_pit_symbol_map_destroy
func lb_pit_symbol_map_destroy(h C.uint64_t) {
	abi.PitDestroy(uint64(h))
}

//export lb_ts_symbol_map_is_empty
func lb_ts_symbol_map_is_empty(h C.uint64_t) C.int32_t {
	return C.int32_t(abi.TsIsEmpty(uint64(h)))
}

//export lb_ts_symbol_map_size
func lb_ts_symbol_map_size(h C.uint64_t) C.size_t {
	return C.size_t(abi.TsSize(uint64(h)))
}

//export lb_ts_symbol_map_find
func lb_ts_symbol_map_find(h C.uint64_t, year C.int, month, day C.uint, instrumentID C.uint32_t, symbolBuf *C.char, symbolLen C.size_t) C.int32_t {
	return C.int32_t(abi.TsFind(uint64(h), int32(year), uint32(month), uint32(day), uint32(instrumentID), bytesOf(unsafe.Pointer(symbolBuf), symbolLen)))
}

//export lb_ts_symbol_map_destroy
func lb_ts_symbol_map_destroy(h C.uint64_t) {
	abi.TsDestroy(uint64(h))
}

//export lb_dbn_file_create
func lb_dbn_file_create(path, metadataJSON *C.char, errBuf *C.char, errLen C.size_t) C.uint64_t {
	return C.uint64_t(abi.FileWriterCreate(goString(path), []byte(goString(metadataJSON)), errorBuffer(errBuf, errLen)))
}

//export lb_dbn_file_write_record
func lb_dbn_file_write_record(h C.uint64_t, record *C.uint8_t, length C.size_t, errBuf *C.char, errLen C.size_t) C.int32_t {
	return C.int32_t(abi.FileWriterWriteRecord(uint64(h), bytesOf(unsafe.Pointer(record), length), errorBuffer(errBuf, errLen)))
}

//export lb_dbn_file_close_writer
func lb_dbn_file_close_writer(h C.uint64_t) {
	abi.FileWriterClose(uint64(h))
}

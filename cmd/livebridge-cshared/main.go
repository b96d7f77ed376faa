// Command livebridge-cshared builds the flat boundary as a C shared library:
//
//	go build -buildmode=c-shared -o liblivebridge.so ./cmd/livebridge-cshared
//
// Every lb_* symbol forwards to package abi. Handles are uint64_t, statuses
// int32_t, and error messages are written into caller buffers.
package main

import "github.com/drblury/livebridge"

func init() {
	livebridge.RegisterTransports()
}

func main() {}

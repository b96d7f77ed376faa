package abi

import (
	"github.com/drblury/livebridge/internal/runtime/dbnfile"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// FileWriterCreate creates a DBN file at path with the header described by
// the metadata JSON snapshot. It returns 0 and fills errBuf on failure.
func FileWriterCreate(path string, metadataJSON []byte, errBuf []byte) uint64 {
	return create(errBuf, handle.KindDbnFileWriter, func() (any, error) {
		if path == "" {
			return nil, lberrors.InvalidArgument("file_path", "cannot be empty")
		}
		if len(metadataJSON) == 0 {
			return nil, lberrors.InvalidArgument("metadata", "cannot be empty")
		}
		md, err := metadata.Parse(metadataJSON)
		if err != nil {
			return nil, lberrors.InvalidArgument("metadata", "%v", err)
		}
		return dbnfile.Create(path, md)
	})
}

// FileWriterWriteRecord appends one record. Records shorter than their
// header claims are rejected with StatusInvalid.
func FileWriterWriteRecord(h uint64, rec []byte, errBuf []byte) int32 {
	return call(errBuf, func() error {
		w, err := resolve[*dbnfile.Writer](h, handle.KindDbnFileWriter)
		if err != nil {
			return err
		}
		return w.WriteRecord(rec)
	})
}

// FileWriterClose flushes and closes the file and unregisters the handle.
func FileWriterClose(h uint64) {
	quiet(func() {
		w, err := take[*dbnfile.Writer](h, handle.KindDbnFileWriter)
		if err != nil {
			return
		}
		if err := w.Close(); err != nil {
			env().Logger.Error("Failed to close DBN file", err, logging.LogFields{"path": w.Path()})
		}
	})
}

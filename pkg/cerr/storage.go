package cerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/ascentxr/opsdeck/pkg/storage"
)

type storageOp string

const (
	opRead      storageOp = "read"
	opWrite     storageOp = "write"
	opDelete    storageOp = "delete"
	opMarshal   storageOp = "marshal"
	opUnmarshal storageOp = "unmarshal"
)

// wrapStorage classifies a failure of op on target. Missing objects are
// NotFound for reads and deletes; a remote backend (S3, Postgres) that runs
// out of time is DeadlineExceeded so callers can tell it from corruption.
func wrapStorage(op storageOp, target string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound) && (op == opRead || op == opDelete):
		return NewError(NotFound, target+" not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(DeadlineExceeded, "storage timed out", fmt.Errorf("%s %s: %w", op, target, err))
	case errors.Is(err, context.Canceled):
		return NewError(Canceled, "request canceled", fmt.Errorf("%s %s: %w", op, target, err))
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}

func WrapStorageReadError(target string, err error) error {
	return wrapStorage(opRead, target, err)
}

func WrapStorageWriteError(target string, err error) error {
	return wrapStorage(opWrite, target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return wrapStorage(opDelete, target, err)
}

// WrapMarshalError and WrapUnmarshalError cover the YAML encoding of stored
// records.
func WrapMarshalError(target string, err error) error {
	return wrapStorage(opMarshal, target, err)
}

func WrapUnmarshalError(target string, err error) error {
	return wrapStorage(opUnmarshal, target, err)
}

package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrorKind classifies RPC failures at the capability boundary.
type ErrorKind int

const (
	// KindUnknown is any failure the boundary could not classify.
	KindUnknown ErrorKind = iota
	// KindNetwork covers transport failures: refused connections, resets, DNS.
	KindNetwork
	// KindTimeout covers deadlines exceeded while talking to the node.
	KindTimeout
	// KindRPC is an error reported by the node itself.
	KindRPC
	// KindNotFound means the requested account or transaction does not exist.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRPC:
		return "rpc"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Transient reports whether a failure of this kind warrants switching endpoints.
func (k ErrorKind) Transient() bool {
	return k == KindNetwork || k == KindTimeout
}

// Error is an RPC failure tagged with its kind and endpoint.
type Error struct {
	Kind     ErrorKind
	Op       string
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, classifying
// raw errors when none is present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return classify(err)
}

// wrap tags err with its kind; nil stays nil.
func wrap(op, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Endpoint: endpoint, Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, rpc.ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return KindRPC
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}
	return KindUnknown
}

// Permanent marks err as not worth retrying. The retrier stops and returns
// err itself.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

package gethrpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Transport kinds accepted by Dial.
const (
	TransportAuto = ""
	TransportHTTP = "http"
	TransportWS   = "ws"
	TransportIPC  = "ipc"
)

// Dial connects to a node endpoint. TransportAuto picks the transport from the URL scheme,
// a bare path is treated as an IPC socket.
func Dial(ctx context.Context, transport, endpoint string) (*rpc.Client, error) {
	var (
		client *rpc.Client
		err    error
	)
	switch transport {
	case TransportAuto:
		client, err = rpc.DialContext(ctx, endpoint)
	case TransportHTTP:
		client, err = rpc.DialHTTP(endpoint)
	case TransportWS:
		client, err = rpc.DialWebsocket(ctx, endpoint, "")
	case TransportIPC:
		client, err = rpc.DialIPC(ctx, endpoint)
	default:
		return nil, fmt.Errorf("unknown node transport %q", transport)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s node %s: %w", transport, endpoint, err)
	}
	return client, nil
}

package substrate

import (
	"context"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// Conn is one live node connection together with the chain constants
// needed to sign against it. A Conn is never reused after a drop.
type Conn struct {
	API            *gsrpc.SubstrateAPI
	Metadata       *types.Metadata
	GenesisHash    types.Hash
	RuntimeVersion *types.RuntimeVersion

	ping  func(ctx context.Context) error
	close func()
}

// Dial opens a websocket connection and loads metadata, genesis hash and
// runtime version. The underlying client does not take a context, so a
// cancelled dial closes the late connection in the background.
func Dial(ctx context.Context, url string) (*Conn, error) {
	type result struct {
		conn *Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dial(url)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func dial(url string) (*Conn, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("load genesis hash: %w", err)
	}
	runtime, err := api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("load runtime version: %w", err)
	}

	return &Conn{
		API:            api,
		Metadata:       meta,
		GenesisHash:    genesis,
		RuntimeVersion: runtime,
		ping: func(ctx context.Context) error {
			done := make(chan error, 1)
			go func() {
				_, err := api.RPC.System.Health()
				done <- err
			}()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		close: api.Client.Close,
	}, nil
}

// Ping runs the node health RPC.
func (c *Conn) Ping(ctx context.Context) error {
	if c == nil || c.ping == nil {
		return fmt.Errorf("connection has no health check")
	}
	return c.ping(ctx)
}

func (c *Conn) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

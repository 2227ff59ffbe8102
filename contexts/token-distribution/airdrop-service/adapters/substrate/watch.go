package substrate

import (
	"errors"
	"sync"

	"faucet/contexts/token-distribution/airdrop-service/ports"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

var errSubscriptionClosed = errors.New("extrinsic status subscription closed")

// watch adapts an extrinsic status subscription to a SubmissionHandle.
type watch struct {
	txHash   string
	nonce    uint64
	statuses chan ports.TxStatus
	errs     chan error
	stop     chan struct{}
	once     sync.Once
	release  func()
	onError  func(error)
}

func newWatch(sub *author.ExtrinsicStatusSubscription, txHash string, nonce uint64, onError func(error)) *watch {
	w := &watch{
		txHash:   txHash,
		nonce:    nonce,
		statuses: make(chan ports.TxStatus, 8),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
		release:  sub.Unsubscribe,
		onError:  onError,
	}
	go w.forward(sub.Chan(), sub.Err())
	return w
}

func (w *watch) TxHash() string                  { return w.txHash }
func (w *watch) Nonce() uint64                   { return w.nonce }
func (w *watch) Statuses() <-chan ports.TxStatus { return w.statuses }
func (w *watch) Errors() <-chan error            { return w.errs }

func (w *watch) Release() {
	w.once.Do(func() {
		close(w.stop)
		w.release()
	})
}

func (w *watch) forward(statuses <-chan types.ExtrinsicStatus, errs <-chan error) {
	for {
		select {
		case <-w.stop:
			return
		case err, ok := <-errs:
			if !ok {
				err = errSubscriptionClosed
			}
			w.fail(err)
			return
		case raw, ok := <-statuses:
			if !ok {
				w.fail(errSubscriptionClosed)
				return
			}
			status, known := toTxStatus(raw)
			if !known {
				continue
			}
			select {
			case w.statuses <- status:
			case <-w.stop:
				return
			}
		}
	}
}

func (w *watch) fail(err error) {
	if w.onError != nil {
		w.onError(err)
	}
	select {
	case w.errs <- err:
	case <-w.stop:
	}
}

func toTxStatus(raw types.ExtrinsicStatus) (ports.TxStatus, bool) {
	switch {
	case raw.IsFuture:
		return ports.TxStatus{Kind: ports.TxStatusFuture}, true
	case raw.IsReady:
		return ports.TxStatus{Kind: ports.TxStatusReady}, true
	case raw.IsBroadcast:
		return ports.TxStatus{Kind: ports.TxStatusBroadcast}, true
	case raw.IsInBlock:
		return ports.TxStatus{Kind: ports.TxStatusInBlock, BlockHash: codec.HexEncodeToString(raw.AsInBlock[:])}, true
	case raw.IsRetracted:
		return ports.TxStatus{Kind: ports.TxStatusRetracted, BlockHash: codec.HexEncodeToString(raw.AsRetracted[:])}, true
	case raw.IsFinalityTimeout:
		return ports.TxStatus{Kind: ports.TxStatusFinalityTimeout, BlockHash: codec.HexEncodeToString(raw.AsFinalityTimeout[:])}, true
	case raw.IsFinalized:
		return ports.TxStatus{Kind: ports.TxStatusFinalized, BlockHash: codec.HexEncodeToString(raw.AsFinalized[:])}, true
	case raw.IsUsurped:
		return ports.TxStatus{Kind: ports.TxStatusUsurped}, true
	case raw.IsDropped:
		return ports.TxStatus{Kind: ports.TxStatusDropped}, true
	case raw.IsInvalid:
		return ports.TxStatus{Kind: ports.TxStatusInvalid}, true
	default:
		return ports.TxStatus{}, false
	}
}

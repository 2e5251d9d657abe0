package replication

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/rishav/replcore/internal/metrics"
	"github.com/rishav/replcore/internal/ring"
)

// runReader drains ring for one replica until its transport fails, it
// is evicted, or the ring is told to stop. It is the only code path
// that ever reads an element's payload.
func runReader(r *ring.Ring, state *ring.ReaderState, transport Transport, log *zap.SugaredLogger, coll *metrics.Collector) {
	readerID := state.ReaderID()
	readerIDLabel := strconv.Itoa(readerID)
	defer func() {
		transport.End()
		r.ReaderExit(readerID)
		if coll != nil {
			coll.ReplicaLag.DeleteLabelValues(readerIDLabel)
		}
		log.Debugw("reader worker exited", "reader_id", readerID)
	}()

	for {
		el, ok := r.GetNext(state)
		if !ok {
			log.Debugw("reader evicted or stopped", "reader_id", readerID)
			return
		}
		if coll != nil {
			coll.ReplicaLag.WithLabelValues(readerIDLabel).Set(float64(r.Lag(state)))
		}

		n, err := transport.SendReplicationFrame(el.EID, el.CmdID, el.Data)
		if err != nil || n < 0 {
			log.Debugw("reader transport send failed, exiting", "reader_id", readerID, "error", err)
			return
		}
		if err := transport.Flush(); err != nil {
			log.Debugw("reader transport flush failed, exiting", "reader_id", readerID, "error", err)
			return
		}
		r.Release(state, el)
	}
}

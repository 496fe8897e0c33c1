package sdk

// Freshest selects the most recently republished sample buffer: the
// entry with the highest TickCount, first entry winning ties so the
// choice is deterministic and independent of the tick values involved.
// It returns the winning slot index and its payload offset.
//
// This is a best-effort freshness signal, not a consistency proof: a
// slot can be rewritten while it is being read. Callers that care use
// the loop's post-read tick re-check.
func Freshest(bufs [MaxBufs]VarBuf) (idx int, off int32) {
	best := bufs[0].TickCount
	off = bufs[0].BufOffset
	for i := 1; i < MaxBufs; i++ {
		if bufs[i].TickCount > best {
			best = bufs[i].TickCount
			off = bufs[i].BufOffset
			idx = i
		}
	}
	return idx, off
}

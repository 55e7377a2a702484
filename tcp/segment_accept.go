package tcp

// acceptable implements the §4.2 segment acceptability test: given an
// inbound segment's sequence range, the receiver's next expected sequence
// number and advertised window, report whether the segment overlaps the
// receive window at all.
//
//	SEG.LEN  RCV.WND  acceptable iff
//	0        0        SEG.SEQ = RCV.NXT
//	0        >0       RCV.NXT <= SEG.SEQ < RCV.NXT+RCV.WND
//	>0       0        never
//	>0       >0       either endpoint of the segment lies in [RCV.NXT, wend)
func acceptable(seg Segment, rcvNxt Value, rcvWnd Size) bool {
	wend := Add(rcvNxt, rcvWnd)
	segLen := seg.LEN()
	switch {
	case segLen == 0 && rcvWnd == 0:
		return seg.SEQ == rcvNxt
	case segLen == 0 && rcvWnd > 0:
		return InWindowInclusive(rcvNxt, seg.SEQ, wend)
	case segLen > 0 && rcvWnd == 0:
		return false
	default: // segLen > 0 && rcvWnd > 0
		return InWindowInclusive(rcvNxt, seg.SEQ, wend) ||
			InWindowInclusive(rcvNxt, seg.Last(), wend)
	}
}

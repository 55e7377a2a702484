package tcp

import "testing"

func TestRSTQueueDrainBuildsValidDatagram(t *testing.T) {
	var q RSTQueue
	local := [4]byte{10, 0, 0, 1}
	remote := [4]byte{10, 0, 0, 2}
	q.Queue(local, remote, 5555, 7000, 1000, 2000, FlagRST|FlagACK)

	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", q.Pending())
	}

	buf := make([]byte, 128)
	n, err := q.Drain(buf, 7)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if q.Pending() != 0 {
		t.Fatalf("Pending() after Drain = %d, want 0", q.Pending())
	}

	tfrm, err := NewFrame(buf[20:n])
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if tfrm.SourcePort() != 7000 {
		t.Errorf("SourcePort = %d, want 7000 (local port)", tfrm.SourcePort())
	}
	if tfrm.DestinationPort() != 5555 {
		t.Errorf("DestinationPort = %d, want 5555 (remote port)", tfrm.DestinationPort())
	}
	seg := tfrm.Segment(0)
	if !seg.Flags.HasAll(FlagRST) {
		t.Errorf("flags = %s, want RST set", seg.Flags)
	}
	if seg.SEQ != 1000 || seg.ACK != 2000 {
		t.Errorf("SEQ/ACK = %d/%d, want 1000/2000", seg.SEQ, seg.ACK)
	}
}

func TestRSTQueueDrainEmpty(t *testing.T) {
	var q RSTQueue
	n, err := q.Drain(make([]byte, 64), 1)
	if err != nil || n != 0 {
		t.Fatalf("Drain on empty queue = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRSTQueueDropsOnOverflow(t *testing.T) {
	var q RSTQueue
	for i := 0; i < 8; i++ {
		q.Queue([4]byte{}, [4]byte{}, 1, 2, 0, 0, FlagRST)
	}
	if q.Pending() != 4 {
		t.Fatalf("Pending() after overflow = %d, want queue capacity 4", q.Pending())
	}
}

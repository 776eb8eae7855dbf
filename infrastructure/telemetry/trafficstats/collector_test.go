package trafficstats

import (
	"sync"
	"testing"
	"time"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.RecordTX(100)
	c.RecordTX(50)
	c.RecordRX(70)
	c.DropTX()
	c.DropRX()
	c.DropRX()

	s := c.Snapshot(time.Now())
	if s.BytesTX != 150 || s.PacketsTX != 2 {
		t.Fatalf("tx counters: %+v", s)
	}
	if s.BytesRX != 70 || s.PacketsRX != 1 {
		t.Fatalf("rx counters: %+v", s)
	}
	if s.TXDropped != 1 || s.RXDropped != 2 {
		t.Fatalf("drop counters: %+v", s)
	}
}

func TestCollectorRekeyCountdown(t *testing.T) {
	c := NewCollector()
	now := time.Unix(1000, 0)

	if s := c.Snapshot(now); s.RekeyIn != 0 {
		t.Fatalf("expected no rekey deadline, got %v", s.RekeyIn)
	}
	c.SetRekeyDeadline(now.Add(30 * time.Second))
	if s := c.Snapshot(now); s.RekeyIn != 30*time.Second {
		t.Fatalf("RekeyIn %v, want 30s", s.RekeyIn)
	}
	// a past deadline reads as zero, not negative
	if s := c.Snapshot(now.Add(time.Minute)); s.RekeyIn != 0 {
		t.Fatalf("RekeyIn %v, want 0", s.RekeyIn)
	}
	c.SetRekeyDeadline(time.Time{})
	if s := c.Snapshot(now); s.RekeyIn != 0 {
		t.Fatalf("cleared deadline still reads %v", s.RekeyIn)
	}
}

func TestCollectorHandshakeTime(t *testing.T) {
	c := NewCollector()
	if s := c.Snapshot(time.Now()); !s.LastHandshakeAt.IsZero() {
		t.Fatal("expected zero handshake time")
	}
	at := time.Unix(2000, 500)
	c.SetLastHandshake(at)
	if s := c.Snapshot(time.Now()); !s.LastHandshakeAt.Equal(at) {
		t.Fatalf("LastHandshakeAt %v, want %v", s.LastHandshakeAt, at)
	}
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.RecordTX(10)
				c.RecordRX(10)
				_ = c.Snapshot(time.Now())
			}
		}()
	}
	wg.Wait()
	s := c.Snapshot(time.Now())
	if s.PacketsTX != 8000 || s.PacketsRX != 8000 {
		t.Fatalf("lost updates: %+v", s)
	}
}

package broadcast

import (
	"context"
	"testing"
	"time"
)

func TestNewSubscriberCatchesUpNotReplay(t *testing.T) {
	q := New[int](8)
	_ = q.Send(1, 0, 0.05)
	_ = q.Send(2, 0.05, 0.05)

	sub := q.Subscribe()
	_ = q.Send(3, 0.10, 0.05)

	ctx := context.Background()
	payload, _, _, lagged, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if lagged {
		t.Fatal("first item after subscribing should not report lag")
	}
	if payload != 3 {
		t.Fatalf("payload = %d, want 3 (a subscriber must not see items sent before it subscribed)", payload)
	}
}

func TestHeaderReplayedBeforeLiveItems(t *testing.T) {
	q := New[int](8)
	q.SetHeader(100, 101)
	_ = q.Send(1, 0, 0.05)

	sub := q.Subscribe()
	ctx := context.Background()

	first, _, _, _, err := sub.Recv(ctx)
	if err != nil || first != 100 {
		t.Fatalf("first Recv = (%d, %v), want 100", first, err)
	}
	second, _, _, _, err := sub.Recv(ctx)
	if err != nil || second != 101 {
		t.Fatalf("second Recv = (%d, %v), want 101", second, err)
	}
}

func TestSlowSubscriberLagsRatherThanBlocksProducer(t *testing.T) {
	q := New[int](2)
	sub := q.Subscribe()

	for i := 0; i < 5; i++ {
		if err := q.Send(i, float64(i)*0.05, 0.05); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	_, _, _, lagged, err := sub.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !lagged {
		t.Fatal("a subscriber reading after overflowing capacity should report lag")
	}
}

func TestSendReturnsClosedAfterClose(t *testing.T) {
	q := New[int](4)
	q.Close()
	if err := q.Send(1, 0, 0); err != ErrClosed {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestRecvReturnsClosedOnceDrained(t *testing.T) {
	q := New[int](4)
	sub := q.Subscribe()
	_ = q.Send(1, 0, 0.05)
	q.Close()

	payload, _, _, _, err := sub.Recv(context.Background())
	if err != nil || payload != 1 {
		t.Fatalf("expected the buffered item to still be delivered, got (%d, %v)", payload, err)
	}

	_, _, _, _, err = sub.Recv(context.Background())
	if err != ErrClosed {
		t.Fatalf("Recv after drain = %v, want ErrClosed", err)
	}
}

func TestAutoStopClosesOnceSubscribersLeave(t *testing.T) {
	q := New[int](4)
	q.SetAutoStop(true)
	sub := q.Subscribe()
	_ = q.Send(1, 0, 0.05)
	sub.Close()

	if err := q.Send(2, 0.05, 0.05); err != ErrClosed {
		t.Fatalf("Send after last subscriber left = %v, want ErrClosed", err)
	}
}

func TestRecvUnblocksOnContextCancellation(t *testing.T) {
	q := New[int](4)
	sub := q.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, _, _, err := sub.Recv(ctx)
	if err == nil {
		t.Fatal("expected Recv to return once the context deadline passed with no items sent")
	}
}

func TestCalculateCapacityGrowsWithMaxLead(t *testing.T) {
	small := CalculateCapacity(1 * time.Second)
	large := CalculateCapacity(10 * time.Second)
	if large <= small {
		t.Fatalf("CalculateCapacity(10s) = %d should exceed CalculateCapacity(1s) = %d", large, small)
	}
}

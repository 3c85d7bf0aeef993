package fpid

import "testing"

func TestIDZero(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want bool
	}{
		{"zero value", ID{}, true},
		{"origin rank set", ID{OriginRank: 1}, false},
		{"sequence set", ID{Sequence: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.Zero(); got != tt.want {
				t.Errorf("Zero() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIDLess(t *testing.T) {
	tests := []struct {
		name string
		a, b ID
		want bool
	}{
		{"lower rank is less", ID{OriginRank: 0, Sequence: 99}, ID{OriginRank: 1, Sequence: 0}, true},
		{"higher rank is not less", ID{OriginRank: 1, Sequence: 0}, ID{OriginRank: 0, Sequence: 99}, false},
		{"same rank, lower sequence is less", ID{OriginRank: 2, Sequence: 1}, ID{OriginRank: 2, Sequence: 2}, true},
		{"equal ids, not less", ID{OriginRank: 2, Sequence: 1}, ID{OriginRank: 2, Sequence: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIDString(t *testing.T) {
	id := ID{OriginRank: 3, Sequence: 42}
	if got, want := id.String(), "3:42"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAllocatorNext(t *testing.T) {
	a := NewAllocator(2)
	first := a.Next()
	second := a.Next()

	if first.OriginRank != 2 || second.OriginRank != 2 {
		t.Fatalf("expected both ids to originate on rank 2, got %v and %v", first, second)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("expected sequential sequences 1, 2; got %d, %d", first.Sequence, second.Sequence)
	}
	if a.Rank() != 2 {
		t.Errorf("Rank() = %d, want 2", a.Rank())
	}
}

func TestAllocatorPeekRestore(t *testing.T) {
	a := NewAllocator(0)
	a.Next()
	a.Next()

	peeked := a.Peek()
	if peeked != 3 {
		t.Fatalf("Peek() = %d, want 3", peeked)
	}

	a.Restore(100)
	if got := a.Next(); got.Sequence != 100 {
		t.Errorf("after Restore(100), Next().Sequence = %d, want 100", got.Sequence)
	}
}

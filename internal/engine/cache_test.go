package engine

import "testing"

func TestRecognitionCache_Epochs(t *testing.T) {
	c := NewRecognitionCache(6)
	c.Put(1, 7, alice)

	tests := []struct {
		trackID int
		idx     int
		wantOK  bool
	}{
		{1, 6, true},
		{1, 11, true},
		{1, 12, false},
		{1, 5, false},
		{2, 7, false},
	}
	for _, tt := range tests {
		got, ok := c.Get(tt.trackID, tt.idx)
		if ok != tt.wantOK {
			t.Errorf("Get(%d, %d) ok = %v, want %v", tt.trackID, tt.idx, ok, tt.wantOK)
		}
		if ok && got != alice {
			t.Errorf("Get(%d, %d) = %v, want %v", tt.trackID, tt.idx, got, alice)
		}
	}
}

func TestRecognitionCache_StoresUnknown(t *testing.T) {
	c := NewRecognitionCache(6)
	c.Put(3, 1, Identity{})

	got, ok := c.Get(3, 2)
	if !ok {
		t.Fatal("expected cached Unknown")
	}
	if got.Known() {
		t.Errorf("expected Unknown, got %v", got)
	}
}

func TestRecognitionCache_Reset(t *testing.T) {
	c := NewRecognitionCache(6)
	c.Put(1, 1, alice)
	c.Put(2, 1, alice)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	c.Reset()

	if c.Len() != 0 {
		t.Errorf("Len() after reset = %d, want 0", c.Len())
	}
}

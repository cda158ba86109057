package timex

import (
	"testing"
	"time"
)

func TestFake_AdvancesPerRead(t *testing.T) {
	f := &Fake{Step: time.Millisecond}
	start := f.Now()
	if Deadline(f, start, 3*time.Millisecond) {
		t.Fatal("deadline reached too early")
	}
	f.Now()
	if !Deadline(f, start, 3*time.Millisecond) {
		t.Fatal("deadline not reached after 3 reads")
	}
	f.Sleep(10 * time.Millisecond)
	if f.Slept != 10*time.Millisecond {
		t.Fatalf("slept = %v", f.Slept)
	}
}

func TestSystem_IsMonotonic(t *testing.T) {
	a := System.Now()
	b := System.Now()
	if b.Sub(a) < 0 {
		t.Fatal("system clock went backwards")
	}
}

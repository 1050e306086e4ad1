package channel

import (
	"math/rand"
	"sort"
	"testing"
)

func keyN(n int) Keytag {
	var vk VerificationKey
	vk[0] = byte(n >> 8)
	vk[1] = byte(n)
	return NewKeytag(vk, nil)
}

func entries(ns []int) []Entry[int] {
	sort.Ints(ns)
	out := make([]Entry[int], 0, len(ns))
	for _, n := range ns {
		out = append(out, Entry[int]{Key: keyN(n), Value: n})
	}
	return out
}

func TestCoiter_ExactlyOneCallbackPerKey(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		inL, inR := map[int]bool{}, map[int]bool{}
		var ls, rs []int
		for i := 0; i < 64; i++ {
			if rng.Intn(3) == 0 {
				inL[i] = true
				ls = append(ls, i)
			}
			if rng.Intn(3) == 0 {
				inR[i] = true
				rs = append(rs, i)
			}
		}
		seen := map[int]int{}
		var order []int
		visit := func(n int) {
			seen[n]++
			order = append(order, n)
		}
		err := Coiter(entries(ls), entries(rs),
			func(k Keytag, l int) {
				if !inL[l] || inR[l] {
					t.Fatalf("onLeft for %d", l)
				}
				visit(l)
			},
			func(k Keytag, r int) {
				if inL[r] || !inR[r] {
					t.Fatalf("onRight for %d", r)
				}
				visit(r)
			},
			func(k Keytag, l, r int) {
				if l != r || !inL[l] || !inR[r] {
					t.Fatalf("onBoth for %d/%d", l, r)
				}
				if !k.Equal(keyN(l)) {
					t.Fatalf("key mismatch for %d", l)
				}
				visit(l)
			})
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		for i := 0; i < 64; i++ {
			want := 0
			if inL[i] || inR[i] {
				want = 1
			}
			if seen[i] != want {
				t.Fatalf("round %d: key %d visited %d times", round, i, seen[i])
			}
		}
		if !sort.IntsAreSorted(order) {
			t.Fatalf("round %d: callbacks out of order %v", round, order)
		}
	}
}

func TestCoiter_EmptySides(t *testing.T) {
	var n int
	count := func(Keytag, int) { n++ }
	if err := Coiter[int, int](nil, nil, count, count, nil); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if err := Coiter(entries([]int{1, 2}), nil, count, count, nil); err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if err := Coiter(nil, entries([]int{3}), count, count, nil); err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestCoiter_RejectsUnordered(t *testing.T) {
	bad := []Entry[int]{{Key: keyN(2)}, {Key: keyN(1)}}
	called := false
	mark := func(Keytag, int) { called = true }
	err := Coiter(bad, entries([]int{1}), mark, mark, nil)
	wantCode(t, err, ERR_UNORDERED_KEYS)
	dup := []Entry[int]{{Key: keyN(1)}, {Key: keyN(1)}}
	err = Coiter(entries([]int{1}), dup, mark, mark, nil)
	wantCode(t, err, ERR_UNORDERED_KEYS)
	if called {
		t.Fatalf("callback ran on rejected input")
	}
}

func TestCoiterDefault_RightOnlyGetsDefault(t *testing.T) {
	type local struct {
		n     int
		fresh bool
	}
	left := []Entry[local]{{Key: keyN(1), Value: local{n: 1}}, {Key: keyN(3), Value: local{n: 3}}}
	right := entries([]int{2, 3})
	var leftOnly []int
	both := map[int]local{}
	err := CoiterDefault(left, right,
		func() local { return local{fresh: true} },
		func(_ Keytag, l local) { leftOnly = append(leftOnly, l.n) },
		func(_ Keytag, l local, r int) { both[r] = l })
	if err != nil {
		t.Fatalf("CoiterDefault: %v", err)
	}
	if len(leftOnly) != 1 || leftOnly[0] != 1 {
		t.Fatalf("leftOnly=%v", leftOnly)
	}
	if !both[2].fresh || both[3].fresh || both[3].n != 3 {
		t.Fatalf("both=%+v", both)
	}
}

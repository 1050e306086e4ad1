package channel

// Entry is one keyed element of an ordered sequence.
type Entry[V any] struct {
	Key   Keytag
	Value V
}

func checkOrdered[V any](side string, xs []Entry[V]) error {
	for i := 1; i < len(xs); i++ {
		if xs[i-1].Key.Compare(xs[i].Key) >= 0 {
			return chanerrf(ERR_UNORDERED_KEYS, "%s keys not strictly ascending at %d", side, i)
		}
	}
	return nil
}

// Coiter merge-walks two strictly ascending sequences in O(n+m) and calls
// exactly one callback per distinct key: onLeft for keys only in left,
// onRight for keys only in right, onBoth for keys in both. Nil callbacks
// are skipped. Unordered input is rejected before any callback runs.
func Coiter[L, R any](
	left []Entry[L],
	right []Entry[R],
	onLeft func(Keytag, L),
	onRight func(Keytag, R),
	onBoth func(Keytag, L, R),
) error {
	if err := checkOrdered("left", left); err != nil {
		return err
	}
	if err := checkOrdered("right", right); err != nil {
		return err
	}
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		l, r := left[i], right[j]
		switch cmp := l.Key.Compare(r.Key); {
		case cmp < 0:
			if onLeft != nil {
				onLeft(l.Key, l.Value)
			}
			i++
		case cmp > 0:
			if onRight != nil {
				onRight(r.Key, r.Value)
			}
			j++
		default:
			if onBoth != nil {
				onBoth(l.Key, l.Value, r.Value)
			}
			i++
			j++
		}
	}
	for ; i < len(left); i++ {
		if onLeft != nil {
			onLeft(left[i].Key, left[i].Value)
		}
	}
	for ; j < len(right); j++ {
		if onRight != nil {
			onRight(right[j].Key, right[j].Value)
		}
	}
	return nil
}

// CoiterDefault is Coiter where a key seen only on the right is handed to
// onBoth with def as its left value.
func CoiterDefault[L, R any](
	left []Entry[L],
	right []Entry[R],
	def func() L,
	onLeft func(Keytag, L),
	onBoth func(Keytag, L, R),
) error {
	onRight := func(k Keytag, r R) {
		if onBoth != nil {
			onBoth(k, def(), r)
		}
	}
	return Coiter(left, right, onLeft, onRight, onBoth)
}

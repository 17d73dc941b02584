package aggregate

// Delta is one pending observation against an emitter key.
type Delta struct {
	Lat      float64
	Lon      float64
	Strength float64
}

// Batch accumulates deltas grouped by emitter key, so repeated observations
// of the same emitter in one worker batch cost a single storage round-trip.
// K is the concrete key type of the emitter kind (normalized MAC string, cell
// identity tuple).
type Batch[K comparable] struct {
	deltas map[K][]Delta
	order  []K
}

func NewBatch[K comparable]() *Batch[K] {
	return &Batch[K]{deltas: make(map[K][]Delta)}
}

func (b *Batch[K]) Add(key K, d Delta) {
	if _, ok := b.deltas[key]; !ok {
		b.order = append(b.order, key)
	}
	b.deltas[key] = append(b.deltas[key], d)
}

func (b *Batch[K]) Len() int { return len(b.order) }

// Keys returns the distinct keys in first-seen order. Deterministic order
// keeps row locking stable across concurrent workers.
func (b *Batch[K]) Keys() []K { return b.order }

// Fold applies the batched deltas for key on top of base. A nil base starts a
// new aggregate from the first delta.
func (b *Batch[K]) Fold(key K, base *Aggregate) Aggregate {
	deltas := b.deltas[key]
	var agg Aggregate
	rest := deltas
	if base != nil {
		agg = *base
	} else {
		agg = New(deltas[0].Lat, deltas[0].Lon, Weight(deltas[0].Strength), deltas[0].Strength)
		rest = deltas[1:]
	}
	for _, d := range rest {
		agg.Observe(d.Lat, d.Lon, Weight(d.Strength), d.Strength)
	}
	return agg
}

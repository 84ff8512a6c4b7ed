package workload

import (
	mrand "math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ChoosersStayInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("uniform draws fall in [start, limit)", prop.ForAll(
		func(seed int64, start, span int64) bool {
			c := &uniformChooser{rng: mrand.New(mrand.NewSource(seed)), start: start}
			for i := 0; i < 50; i++ {
				k := c.next(start + span)
				if k < start || k >= start+span {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Int64Range(0, 1000),
		gen.Int64Range(1, 100000),
	))

	properties.Property("scrambled zipfian draws fall in [start, limit)", prop.ForAll(
		func(seed int64, items, limit int64) bool {
			if limit > items {
				limit = items
			}
			c := newScrambledZipfianChooser(mrand.New(mrand.NewSource(seed)), 0, items)
			for i := 0; i < 50; i++ {
				k := c.next(limit)
				if k < 0 || k >= limit {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Int64Range(1, 1000000),
		gen.Int64Range(1, 1000000),
	))

	properties.Property("latest draws fall in [start, limit)", prop.ForAll(
		func(seed int64, limit int64) bool {
			rng := mrand.New(mrand.NewSource(seed))
			c := &latestChooser{z: newZipfian(rng, 10, zipfianConstant)}
			for i := 0; i < 50; i++ {
				k := c.next(limit)
				if k < 0 || k >= limit {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Int64Range(1, 5000),
	))

	properties.TestingRun(t)
}

func TestZipfianSkew(t *testing.T) {
	z := newZipfian(mrand.New(mrand.NewSource(1)), 1000, zipfianConstant)

	counts := make([]int, 1000)
	for i := 0; i < 100000; i++ {
		counts[z.next(1000)]++
	}

	if counts[0] <= counts[500] {
		t.Errorf("item 0 drawn %d times, item 500 %d times; want skew toward 0",
			counts[0], counts[500])
	}
	if counts[0] < 5000 {
		t.Errorf("item 0 drawn %d times, want a hot head", counts[0])
	}
}

func TestDiscreteHonoursWeights(t *testing.T) {
	d := newDiscrete(mrand.New(mrand.NewSource(3)))
	d.add(KindRead, 0.75)
	d.add(KindUpdate, 0.25)
	d.add(KindScan, 0)

	counts := make(map[Kind]int)
	for i := 0; i < 10000; i++ {
		counts[d.next()]++
	}

	if counts[KindScan] != 0 {
		t.Errorf("zero-weight kind drawn %d times", counts[KindScan])
	}
	if counts[KindRead] < 7000 || counts[KindRead] > 8000 {
		t.Errorf("reads = %d, want about 7500", counts[KindRead])
	}
}

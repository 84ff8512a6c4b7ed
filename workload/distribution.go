package workload

import (
	"encoding/binary"
	"math"
	mrand "math/rand"

	"github.com/spaolacci/murmur3"
)

const (
	zipfianConstant = 0.99

	// Scrambled zipfian draws from a fixed, very large item space so
	// its zeta constant can be precomputed instead of summed per run.
	scrambledItemCount = 10_000_000_000
	scrambledZetan     = 26.46902820178302
)

func hash64(n int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	return murmur3.Sum64(buf[:])
}

// zipfian draws integers in [0, items) where small values are popular,
// following Gray et al., "Quickly Generating Billion-Record Synthetic
// Databases". The item count may grow between draws; zeta is extended
// incrementally in that case.
type zipfian struct {
	rng *mrand.Rand

	theta     float64
	alpha     float64
	zeta2     float64
	zetan     float64
	eta       float64
	zetaItems int64
}

func newZipfian(rng *mrand.Rand, items int64, theta float64) *zipfian {
	z := &zipfian{
		rng:   rng,
		theta: theta,
		alpha: 1 / (1 - theta),
		zeta2: zeta(0, 2, theta, 0),
	}
	z.resize(items, zeta(0, items, theta, 0))
	return z
}

func newZipfianWithZeta(rng *mrand.Rand, items int64, theta, zetan float64) *zipfian {
	z := &zipfian{
		rng:   rng,
		theta: theta,
		alpha: 1 / (1 - theta),
		zeta2: zeta(0, 2, theta, 0),
	}
	z.resize(items, zetan)
	return z
}

// zeta sums 1/i^theta for i in (from, to], continuing from initial.
func zeta(from, to int64, theta, initial float64) float64 {
	sum := initial
	for i := from; i < to; i++ {
		sum += 1 / math.Pow(float64(i+1), theta)
	}
	return sum
}

func (z *zipfian) resize(items int64, zetan float64) {
	z.zetaItems = items
	z.zetan = zetan
	z.eta = (1 - math.Pow(2/float64(items), 1-z.theta)) / (1 - z.zeta2/zetan)
}

func (z *zipfian) next(items int64) int64 {
	if items != z.zetaItems {
		if items > z.zetaItems {
			z.resize(items, zeta(z.zetaItems, items, z.theta, z.zetan))
		} else {
			z.resize(items, zeta(0, items, z.theta, 0))
		}
	}

	u := z.rng.Float64()
	uz := u * z.zetan

	if uz < 1 {
		return 0
	}
	if uz < 1+math.Pow(0.5, z.theta) {
		return 1
	}

	ret := int64(float64(items) * math.Pow(z.eta*u-z.eta+1, z.alpha))
	if ret >= items {
		ret = items - 1
	}
	return ret
}

// keyChooser picks the key number for reads, updates, scans and
// read-modify-writes given the exclusive upper bound of inserted keys.
type keyChooser interface {
	next(limit int64) int64
}

type uniformChooser struct {
	rng   *mrand.Rand
	start int64
}

func (c *uniformChooser) next(limit int64) int64 {
	span := limit - c.start
	if span <= 0 {
		return c.start
	}
	return c.start + c.rng.Int63n(span)
}

// scrambledZipfianChooser spreads the popular items over the key space
// by hashing the zipfian draw.
type scrambledZipfianChooser struct {
	z     *zipfian
	start int64
	items int64
}

func newScrambledZipfianChooser(rng *mrand.Rand, start, items int64) *scrambledZipfianChooser {
	return &scrambledZipfianChooser{
		z:     newZipfianWithZeta(rng, scrambledItemCount, zipfianConstant, scrambledZetan),
		start: start,
		items: items,
	}
}

func (c *scrambledZipfianChooser) draw() int64 {
	n := c.z.next(scrambledItemCount)
	return c.start + int64(hash64(n)%uint64(c.items))
}

func (c *scrambledZipfianChooser) next(limit int64) int64 {
	if limit <= c.start {
		return c.start
	}

	// Keys beyond the inserted range are redrawn, as YCSB does.
	for i := 0; i < 64; i++ {
		if k := c.draw(); k < limit {
			return k
		}
	}
	return c.start + (c.draw()-c.start)%(limit-c.start)
}

// latestChooser favours the most recently inserted keys.
type latestChooser struct {
	z     *zipfian
	start int64
}

func (c *latestChooser) next(limit int64) int64 {
	span := limit - c.start
	if span <= 0 {
		return c.start
	}
	return limit - 1 - c.z.next(span)
}

// discrete picks one of several values with fixed weights.
type discrete struct {
	rng     *mrand.Rand
	kinds   []Kind
	weights []float64
	total   float64
}

func newDiscrete(rng *mrand.Rand) *discrete {
	return &discrete{rng: rng}
}

func (d *discrete) add(k Kind, weight float64) {
	if weight <= 0 {
		return
	}
	d.kinds = append(d.kinds, k)
	d.weights = append(d.weights, weight)
	d.total += weight
}

func (d *discrete) next() Kind {
	if len(d.kinds) == 0 {
		return KindRead
	}

	v := d.rng.Float64() * d.total
	for i, w := range d.weights {
		if v < w {
			return d.kinds[i]
		}
		v -= w
	}
	return d.kinds[len(d.kinds)-1]
}

// Package classifier implements the Pegasos-style linear SGD
// classifier (spec.md §4.8), grounded on
// _examples/original_source/src/classifier.rs: lazy scaling (Scale,
// SquaredNorm), sparse weight storage, and the logistic-loss pairwise
// update with projection onto the L2 ball of radius 1/sqrt(lambda).
package classifier

import (
	"math"
	"math/rand"
	"os"
	"sort"

	"calret/internal/calerr"
	"calret/internal/featurevec"
	"calret/internal/wire"
)

// MinScale is the underflow guard on the lazy Scale factor: once Scale
// drops below this, the weight vector is re-materialized at Scale = 1
// (classifier.rs's MIN_SCALE).
const MinScale = 1e-11

// Classifier is a sparse linear model trained by pairwise Pegasos SGD.
// The effective weight vector is W scaled by Scale; SquaredNorm always
// holds the squared L2 norm of that effective vector, kept up to date
// incrementally by scaleBy and addVector rather than recomputed from
// scratch.
type Classifier struct {
	Lambda      float64
	NumIters    int
	W           map[uint32]float64
	Scale       float64
	SquaredNorm float64
}

// New creates an untrained Classifier with the given regularization
// strength and iteration count.
func New(lambda float64, numIters int) *Classifier {
	return &Classifier{
		Lambda:   lambda,
		NumIters: numIters,
		W:        make(map[uint32]float64),
		Scale:    1.0,
	}
}

// Weight returns the effective (post-scale) weight for tokid.
func (c *Classifier) Weight(tokid uint32) float64 {
	return c.W[tokid] * c.Scale
}

// NonZeroWeights returns every (tokid, weight) pair with a non-zero
// effective weight, used by the index-traversal scorer to build its
// query from the model itself (spec.md §4.9).
func (c *Classifier) NonZeroWeights() []struct {
	Tokid  uint32
	Weight float64
} {
	out := make([]struct {
		Tokid  uint32
		Weight float64
	}, 0, len(c.W))
	for tokid, raw := range c.W {
		w := raw * c.Scale
		if w == 0 {
			continue
		}
		out = append(out, struct {
			Tokid  uint32
			Weight float64
		}{Tokid: tokid, Weight: w})
	}
	return out
}

// Score computes the effective inner product of the model with v.
func (c *Classifier) Score(v *featurevec.Vector) float64 {
	return c.innerProduct(v)
}

func (c *Classifier) innerProduct(v *featurevec.Vector) float64 {
	var raw float64
	for _, p := range v.Features {
		if w, ok := c.W[p.ID]; ok {
			raw += w * float64(p.Value)
		}
	}
	return raw * c.Scale
}

// scaleBy multiplies the effective weight vector by alpha, keeping
// SquaredNorm consistent. If Scale has already underflowed MinScale it
// is re-materialized into W before alpha is applied, and alpha is only
// folded into Scale when positive (classifier.rs's scale_by).
func (c *Classifier) scaleBy(alpha float64) {
	if c.Scale < MinScale {
		c.scaleToOne()
	}
	c.SquaredNorm *= alpha * alpha
	if alpha > 0 {
		c.Scale *= alpha
	}
}

// scaleToOne folds the current Scale factor into W so that Scale
// becomes 1 without changing the effective vector.
func (c *Classifier) scaleToOne() {
	for id, w := range c.W {
		c.W[id] = w * c.Scale
	}
	c.Scale = 1.0
}

// addVector adds alpha*v to the effective weight vector, updating
// SquaredNorm in closed form rather than recomputing it.
func (c *Classifier) addVector(v *featurevec.Vector, alpha float64) {
	if alpha == 0 || len(v.Features) == 0 {
		return
	}
	ip := c.innerProduct(v)
	c.SquaredNorm += alpha*alpha*v.SquaredNorm() + 2*alpha*ip
	for _, p := range v.Features {
		c.W[p.ID] += alpha * float64(p.Value) / c.Scale
	}
}

// Train runs NumIters steps of pairwise Pegasos SGD: each step samples
// one positive and one negative example, takes a logistic-loss
// subgradient step toward ranking the positive above the negative, and
// projects the weight vector back into the L2 ball of radius
// 1/sqrt(lambda).
func (c *Classifier) Train(pos, neg []*featurevec.Vector, rng *rand.Rand) error {
	if len(pos) == 0 {
		return calerr.Invariantf("classifier: no positive examples")
	}
	if len(neg) == 0 {
		return calerr.Invariantf("classifier: no negative examples")
	}
	if c.Lambda <= 0 {
		return calerr.Invariantf("classifier: lambda must be positive")
	}

	bound := 1.0 / math.Sqrt(c.Lambda)

	for i := 0; i < c.NumIters; i++ {
		eta := 1.0 / (c.Lambda * float64(i+1))
		a := pos[rng.Intn(len(pos))]
		b := neg[rng.Intn(len(neg))]

		ip := c.innerProduct(a) - c.innerProduct(b)
		loss := 1.0 / (1.0 + math.Exp(ip))

		sf := 1 - eta*c.Lambda
		if sf <= MinScale {
			sf = MinScale
		}
		c.scaleBy(sf)
		if loss > 0 {
			c.addVector(a, eta*loss)
			c.addVector(b, -eta*loss)
		}

		if norm := math.Sqrt(c.SquaredNorm); norm > bound && norm > 0 {
			c.scaleBy(bound / norm)
		}
	}
	return nil
}

// Evaluate reports, as precision, the fraction of all examples on the
// correct side of 0 (pos scoring above 0 plus neg scoring below 0, over
// len(pos)+len(neg)) and, as recall, the fraction of pos scoring above
// 0; a diagnostic printed (never persisted) after training
// (SPEC_FULL.md supplemented feature 2).
func (c *Classifier) Evaluate(pos, neg []*featurevec.Vector) (precision, recall float64) {
	correctPos := 0
	for _, v := range pos {
		if c.Score(v) > 0 {
			correctPos++
		}
	}
	correctNeg := 0
	for _, v := range neg {
		if c.Score(v) < 0 {
			correctNeg++
		}
	}
	total := len(pos) + len(neg)
	correct := correctPos + correctNeg
	precision = 0
	if total > 0 {
		precision = float64(correct) / float64(total)
	}
	recall = 0
	if len(pos) > 0 {
		recall = float64(correctPos) / float64(len(pos))
	}
	return precision, recall
}

type weightEntry struct {
	tokid  uint32
	weight float32
}

// Save persists the classifier, materializing Scale into W first so
// only true sparse weights are written (classifier.rs's sparse
// bincode Encode, via SparseVector).
func (c *Classifier) Save(path string) error {
	c.scaleToOne()

	entries := make([]weightEntry, 0, len(c.W))
	for id, w := range c.W {
		if w == 0 {
			continue
		}
		entries = append(entries, weightEntry{tokid: id, weight: float32(w)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tokid < entries[j].tokid })

	f, err := os.Create(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()

	if err := wire.WriteFloat32(f, float32(c.Lambda)); err != nil {
		return calerr.IOErr(path, err)
	}
	if err := wire.WriteUint32(f, uint32(c.NumIters)); err != nil {
		return calerr.IOErr(path, err)
	}
	if err := wire.WriteUint32(f, uint32(len(entries))); err != nil {
		return calerr.IOErr(path, err)
	}
	for _, e := range entries {
		if err := wire.WriteUint32(f, e.tokid); err != nil {
			return calerr.IOErr(path, err)
		}
		if err := wire.WriteFloat32(f, e.weight); err != nil {
			return calerr.IOErr(path, err)
		}
	}
	return nil
}

// Load reads a classifier previously written by Save.
func Load(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, calerr.NotFoundf(path, "classifier model not found")
		}
		return nil, calerr.IOErr(path, err)
	}
	defer f.Close()

	lambda, err := wire.ReadFloat32(f)
	if err != nil {
		return nil, calerr.Corruptf(path, "reading lambda: %w", err)
	}
	numIters, err := wire.ReadUint32(f)
	if err != nil {
		return nil, calerr.Corruptf(path, "reading num_iters: %w", err)
	}
	n, err := wire.ReadUint32(f)
	if err != nil {
		return nil, calerr.Corruptf(path, "reading weight count: %w", err)
	}

	c := New(float64(lambda), int(numIters))
	var squaredNorm float64
	for i := uint32(0); i < n; i++ {
		tokid, err := wire.ReadUint32(f)
		if err != nil {
			return nil, calerr.Corruptf(path, "reading weight %d tokid: %w", i, err)
		}
		weight, err := wire.ReadFloat32(f)
		if err != nil {
			return nil, calerr.Corruptf(path, "reading weight %d value: %w", i, err)
		}
		c.W[tokid] = float64(weight)
		squaredNorm += float64(weight) * float64(weight)
	}
	c.SquaredNorm = squaredNorm
	return c, nil
}

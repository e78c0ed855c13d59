// Package extsort implements ExternalSort, a disk-backed sort over
// records too numerous to hold in memory at once: records are read in
// bounded chunks, sorted in memory, spilled to run files (in parallel,
// spec.md §4.2), then merged back together through a real k-way
// min-heap merge. Grounded on
// _examples/original_source/src/extsort.rs's divide_into_runs/merge_runs
// shape, but replacing that prototype's "re-sort the whole candidate
// list on every pop" merge step with a proper container/heap, which is
// what spec.md §4.2 actually specifies.
package extsort

import (
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"calret/internal/calerr"
)

// Codec tells ExternalSort how to encode and decode one record of type
// T to and from a stream.
type Codec[T any] struct {
	Encode func(w io.Writer, v T) error
	Decode func(r io.Reader) (T, error)
}

// Source supplies records to be sorted, one at a time. It returns
// io.EOF (with the zero value) once exhausted.
type Source[T any] func() (T, error)

// Sink consumes sorted records in order.
type Sink[T any] func(v T) error

// Run streams records from src, sorts them externally, and delivers
// them to dst in Less order. bufferSize is the maximum record count
// held in memory per run. tempDir holds scratch run files, removed
// before Run returns.
func Run[T any](src Source[T], dst Sink[T], less func(a, b T) bool, codec Codec[T], bufferSize int, tempDir string) error {
	if bufferSize <= 0 {
		return calerr.Invariantf("extsort: bufferSize must be positive")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return calerr.IOErr(tempDir, err)
	}
	defer os.RemoveAll(tempDir)

	runPaths, err := divideIntoRuns(src, less, codec, bufferSize, tempDir)
	if err != nil {
		return err
	}
	if len(runPaths) == 0 {
		return nil
	}
	if len(runPaths) == 1 {
		return copyRun(runPaths[0], dst, codec)
	}
	return mergeRuns(runPaths, dst, less, codec)
}

func divideIntoRuns[T any](src Source[T], less func(a, b T) bool, codec Codec[T], bufferSize int, tempDir string) ([]string, error) {
	var runPaths []string
	var g errgroup.Group
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))

	runIdx := 0
	for {
		buf := make([]T, 0, bufferSize)
		for len(buf) < bufferSize {
			v, err := src()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			buf = append(buf, v)
		}
		if len(buf) == 0 {
			break
		}

		path := filepath.Join(tempDir, fmt.Sprintf("run-%06d", runIdx))
		runPaths = append(runPaths, path)
		runIdx++

		g.Go(func() error {
			slices.SortStableFunc(buf, func(a, b T) int {
				switch {
				case less(a, b):
					return -1
				case less(b, a):
					return 1
				default:
					return 0
				}
			})
			return writeRun(path, buf, codec)
		})

		if len(buf) < bufferSize {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runPaths, nil
}

func writeRun[T any](path string, records []T, codec Codec[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()
	for _, r := range records {
		if err := codec.Encode(f, r); err != nil {
			return calerr.IOErr(path, err)
		}
	}
	return nil
}

func copyRun[T any](path string, dst Sink[T], codec Codec[T]) error {
	f, err := os.Open(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()
	for {
		v, err := codec.Decode(f)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return calerr.Corruptf(path, "decoding run record: %w", err)
		}
		if err := dst(v); err != nil {
			return err
		}
	}
}

// mergeHeap holds one candidate record per still-open run, ordered by
// the caller's less function and tie-broken by run index.
type mergeHeap[T any] struct {
	fronts []T
	runs   []int
	less   func(a, b T) bool
}

func (h *mergeHeap[T]) Len() int { return len(h.fronts) }
func (h *mergeHeap[T]) Less(i, j int) bool {
	if h.less(h.fronts[i], h.fronts[j]) {
		return true
	}
	if h.less(h.fronts[j], h.fronts[i]) {
		return false
	}
	return h.runs[i] < h.runs[j]
}
func (h *mergeHeap[T]) Swap(i, j int) {
	h.fronts[i], h.fronts[j] = h.fronts[j], h.fronts[i]
	h.runs[i], h.runs[j] = h.runs[j], h.runs[i]
}
func (h *mergeHeap[T]) Push(x any) {
	pair := x.(mergePair[T])
	h.fronts = append(h.fronts, pair.v)
	h.runs = append(h.runs, pair.run)
}
func (h *mergeHeap[T]) Pop() any {
	n := len(h.fronts)
	v, run := h.fronts[n-1], h.runs[n-1]
	h.fronts = h.fronts[:n-1]
	h.runs = h.runs[:n-1]
	return mergePair[T]{v: v, run: run}
}

type mergePair[T any] struct {
	v   T
	run int
}

func mergeRuns[T any](runPaths []string, dst Sink[T], less func(a, b T) bool, codec Codec[T]) error {
	files := make([]*os.File, len(runPaths))
	for i, p := range runPaths {
		f, err := os.Open(p)
		if err != nil {
			return calerr.IOErr(p, err)
		}
		files[i] = f
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	h := &mergeHeap[T]{less: less}
	heap.Init(h)

	for i, f := range files {
		v, err := codec.Decode(f)
		if err == io.EOF {
			continue
		}
		if err != nil {
			return calerr.Corruptf(runPaths[i], "decoding run record: %w", err)
		}
		heap.Push(h, mergePair[T]{v: v, run: i})
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(mergePair[T])
		if err := dst(top.v); err != nil {
			return err
		}
		next, err := codec.Decode(files[top.run])
		if err == io.EOF {
			continue
		}
		if err != nil {
			return calerr.Corruptf(runPaths[top.run], "decoding run record: %w", err)
		}
		heap.Push(h, mergePair[T]{v: next, run: top.run})
	}
	return nil
}

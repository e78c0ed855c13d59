// calret is the command-line entrypoint for the Continuous Active
// Learning retrieval engine: build an index from document bundles,
// train a linear classifier against relevance judgments, and score a
// collection against a trained model (spec.md §6).
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"calret/internal/build"
	"calret/internal/classifier"
	"calret/internal/featurevec"
	"calret/internal/qrels"
	"calret/internal/scorer"
	"calret/internal/store"
	"calret/internal/tok"
)

const (
	green  = "\033[32m"
	blue   = "\033[34m"
	red    = "\033[31m"
	cyan   = "\033[36m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

var version = "dev"

// printStartupBanner writes to stderr, never stdout: build/train/score
// all have a machine-readable stdout contract the banner must not pollute.
func printStartupBanner() {
	fmt.Fprintln(os.Stderr, green+`
  ____      _ ____      _
 / ___|__ _| |  _ \ ___| |_
| |   / _`+"`"+` | | |_) / _ \ __|
| |__| (_| | |  _ <  __/ |_
 \____\__,_|_|_| \_\___|\__|
`+cyan+`Continuous Active Learning for text retrieval`+reset)
	fmt.Fprintf(os.Stderr, "%sVersion:%s %s\n\n", blue, reset, version)
}

func main() {
	app := &cli.App{
		Name:    "calret",
		Usage:   "continuous active learning text retrieval engine",
		Version: version,
		Before: func(c *cli.Context) error {
			if !c.Bool("quiet") {
				printStartupBanner()
			}
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress the startup banner"},
		},
		Commands: []*cli.Command{
			buildCommand,
			trainCommand,
			scoreCommand,
			scoreOneCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%sError:%s %v\n", red, reset, err)
		os.Exit(1)
	}
}

// warnf prints a yellow warning line to stderr, matching the teacher's
// use of yellow for non-fatal notices.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%sWarning:%s "+format+"\n", append([]any{yellow, reset}, args...)...)
}

var buildCommand = &cli.Command{
	Name:      "build",
	Usage:     "build an index from one or more document bundles",
	ArgsUsage: "<collection> <bundle>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "docid-field", Value: "docid", Usage: "JSON field holding the document's external id"},
		&cli.StringFlag{Name: "body-field", Value: "body", Usage: "JSON field holding the document's text body"},
		&cli.StringFlag{Name: "tokenizer", Aliases: []string{"t"}, Value: "englishstemlower", Usage: "tokenizer name (englishstemlower, ngram2, ngram3, ngramhashed2, ngramhashed3, xlmrsentencepiece)"},
		&cli.BoolFlag{Name: "mapreduce", Usage: "use the map-reduce builder (external sort) instead of the in-memory builder"},
		&cli.IntFlag{Name: "checkpoint-postings", Value: 0, Usage: "map-reduce: flush in-memory postings to disk after this many postings accumulate (0 disables checkpointing)"},
		&cli.IntFlag{Name: "extsort-buffer", Value: 1 << 20, Usage: "map-reduce: run size (tuples) for the external sort"},
		&cli.StringFlag{Name: "temp-dir", Value: os.TempDir(), Usage: "map-reduce: scratch directory for spill files and sorted runs"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.Exit("usage: calret build <collection> <bundle>...", 1)
		}
		tokenizer, err := tok.Get(c.String("tokenizer"))
		if err != nil {
			return cli.Exit(err, 1)
		}

		opts := build.Options{
			Tokenizer:  tokenizer,
			DocIDField: c.String("docid-field"),
			BodyField:  c.String("body-field"),
			Bundles:    c.Args().Tail(),
			OutPrefix:  c.Args().First(),
		}

		start := time.Now()
		if c.Bool("mapreduce") {
			err = build.BuildMapReduce(build.MapReduceOptions{
				Options:            opts,
				CheckpointPostings: c.Int("checkpoint-postings"),
				ExtsortBufferSize:  c.Int("extsort-buffer"),
				TempDir:            c.String("temp-dir"),
			})
		} else {
			err = build.BuildInMemory(opts)
		}
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Printf("%sdone%s in %s\n", green, reset, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var trainCommand = &cli.Command{
	Name:      "train",
	Usage:     "train a linear classifier against a qrels file",
	ArgsUsage: "<collection> <model> <qrels_file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Value: 1, Usage: "minimum relevance judged positive"},
		&cli.IntFlag{Name: "num-sampled-negatives", Aliases: []string{"n"}, Value: 0, Usage: "augment the judged negatives with this many random unjudged docs"},
		&cli.Float64Flag{Name: "lambda", Value: 0.01, Usage: "regularization strength"},
		&cli.IntFlag{Name: "iterations", Value: 1000, Usage: "PEGASOS iteration count"},
		&cli.Int64Flag{Name: "seed", Value: 0, Usage: "random seed (0 picks a time-based seed)"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return cli.Exit("usage: calret train <collection> <model> <qrels_file>", 1)
		}
		collection, modelPath, qrelsPath := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

		s, err := store.Open(collection, 0)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer s.Close()

		judgments, err := qrels.Parse(qrelsPath)
		if err != nil {
			return cli.Exit(err, 1)
		}
		posIDs, negIDs := qrels.Split(judgments, c.Int("level"))

		pos, err := resolveVectors(s, posIDs)
		if err != nil {
			return cli.Exit(err, 1)
		}
		neg, err := resolveVectors(s, negIDs)
		if err != nil {
			return cli.Exit(err, 1)
		}

		if n := c.Int("num-sampled-negatives"); n > 0 {
			extra, err := sampleNegatives(s, qrels.ExcludeSet(judgments), n)
			if err != nil {
				return cli.Exit(err, 1)
			}
			neg = append(neg, extra...)
		}

		seed := c.Int64("seed")
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		cl, err := classifier.Load(modelPath)
		if err != nil {
			warnf("no existing model at %s, starting from scratch", modelPath)
			cl = classifier.New(c.Float64("lambda"), c.Int("iterations"))
		}
		if err := cl.Train(pos, neg, rng); err != nil {
			return cli.Exit(err, 1)
		}
		if err := cl.Save(modelPath); err != nil {
			return cli.Exit(err, 1)
		}

		precision, recall := cl.Evaluate(pos, neg)
		fmt.Fprintf(os.Stderr, "%strained%s on %d positive, %d negative examples\n", green, reset, len(pos), len(neg))
		fmt.Fprintf(os.Stderr, "training precision %.4f, recall %.4f\n", precision, recall)
		return nil
	},
}

var scoreCommand = &cli.Command{
	Name:      "score",
	Usage:     "score every document in a collection against a trained model",
	ArgsUsage: "<collection> <model>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "num-results", Aliases: []string{"n"}, Value: 100, Usage: "number of top-scoring documents to print (0 = all)"},
		&cli.StringFlag{Name: "exclude-qrels", Aliases: []string{"e"}, Usage: "qrels file whose docids are excluded from results"},
		&cli.BoolFlag{Name: "use-index", Usage: "score by walking posting lists seeded from the model's nonzero weights instead of a full scan"},
		&cli.BoolFlag{Name: "with-idf", Usage: "weight index-scorer postings by idf (index scoring only)"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("usage: calret score <collection> <model>", 1)
		}
		s, err := store.Open(c.Args().Get(0), 0)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer s.Close()

		cl, err := classifier.Load(c.Args().Get(1))
		if err != nil {
			return cli.Exit(err, 1)
		}

		opts := scorer.Options{NumResults: c.Int("num-results"), WithIDF: c.Bool("with-idf")}
		if excludePath := c.String("exclude-qrels"); excludePath != "" {
			judgments, err := qrels.Parse(excludePath)
			if err != nil {
				return cli.Exit(err, 1)
			}
			opts.Exclude = qrels.ExcludeSet(judgments)
		}

		var results []scorer.DocScore
		if c.Bool("use-index") {
			results, err = scorer.IndexScore(s, cl, opts)
		} else {
			results, err = scorer.FullScan(s, cl, opts)
		}
		if err != nil {
			return cli.Exit(err, 1)
		}

		for _, r := range results {
			fmt.Printf("%s\t%.6f\n", r.ExtID, r.Score)
		}
		return nil
	},
}

var scoreOneCommand = &cli.Command{
	Name:      "score_one",
	Usage:     "score a single document against a trained model",
	ArgsUsage: "<collection> <model> <docid>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return cli.Exit("usage: calret score_one <collection> <model> <docid>", 1)
		}
		s, err := store.Open(c.Args().Get(0), 0)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer s.Close()

		cl, err := classifier.Load(c.Args().Get(1))
		if err != nil {
			return cli.Exit(err, 1)
		}

		score, err := scorer.ScoreOne(s, cl, c.Args().Get(2))
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Printf("%.6f\n", score)
		return nil
	},
}

func resolveVectors(s *store.Store, extids []string) ([]*featurevec.Vector, error) {
	out := make([]*featurevec.Vector, 0, len(extids))
	for _, extid := range extids {
		intid, err := s.GetDocIntID(extid)
		if err != nil {
			return nil, err
		}
		v, err := s.FeatureVector(intid)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// sampleNegatives draws n docids uniformly at random from the full
// docid space, excluding any docid already in used (supplemented
// feature: train's -n flag).
func sampleNegatives(s *store.Store, used map[string]struct{}, n int) ([]*featurevec.Vector, error) {
	total := s.NumDocs()
	out := make([]*featurevec.Vector, 0, n)
	maxAttempts := n * 20
	if maxAttempts < total {
		maxAttempts = total
	}
	for attempt := 0; attempt < maxAttempts && len(out) < n; attempt++ {
		intid := uint32(rand.Intn(total) + 1)
		extid, err := s.GetDocID(intid)
		if err != nil {
			return nil, err
		}
		if _, skip := used[extid]; skip {
			continue
		}
		v, err := s.FeatureVector(intid)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Package qrels parses TREC-style relevance judgment files, the format
// train_qrels and score-index consume in
// _examples/original_source/src/classifier.rs and src/bin/score-index.rs:
// one judgment per line, "qid iter docno relevance", '#'-prefixed lines
// are comments.
package qrels

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"calret/internal/calerr"
)

// Judgment is one relevance judgment line.
type Judgment struct {
	DocID     string
	Relevance int
}

// Parse reads every non-comment judgment line from path.
func Parse(path string) ([]Judgment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, calerr.IOErr(path, err)
	}
	defer f.Close()
	return ParseReader(f, path)
}

// ParseReader reads judgments from r; path is used only for error
// messages.
func ParseReader(r io.Reader, path string) ([]Judgment, error) {
	var out []Judgment
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, calerr.Corruptf(path, "line %d: expected at least 4 fields, got %d", lineNo, len(fields))
		}
		rel, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, calerr.Corruptf(path, "line %d: relevance %q is not an integer: %w", lineNo, fields[3], err)
		}
		out = append(out, Judgment{DocID: fields[2], Relevance: rel})
	}
	if err := sc.Err(); err != nil {
		return nil, calerr.IOErr(path, err)
	}
	return out, nil
}

// Split partitions judgments into positive (relevance >= relLevel) and
// negative (relevance < relLevel) docid sets, the way train_qrels
// builds its pos/neg FeatureVec lists from the qrels file. relLevel is
// the CLI's configurable `-l level` threshold (spec.md §6, default 1).
func Split(judgments []Judgment, relLevel int) (positive, negative []string) {
	for _, j := range judgments {
		if j.Relevance >= relLevel {
			positive = append(positive, j.DocID)
		} else {
			negative = append(negative, j.DocID)
		}
	}
	return positive, negative
}

// ExcludeSet returns every docid mentioned in judgments regardless of
// relevance level, matching score-index's -e/--exclude semantics
// (SPEC_FULL.md supplemented feature 3): unconditional on relevance.
func ExcludeSet(judgments []Judgment) map[string]struct{} {
	set := make(map[string]struct{}, len(judgments))
	for _, j := range judgments {
		set[j.DocID] = struct{}{}
	}
	return set
}

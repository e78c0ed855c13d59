// Package ingest reads line-delimited JSON document bundles for the
// build subcommand, transparently decompressing gzip input. spec.md §1
// names JSON parsing and gzip decompression as external-collaborator
// concerns rather than a domain algorithm to design, so this package
// is deliberately plain encoding/json + compress/gzip rather than a
// third-party JSON library — there is no compression-format or schema
// complexity here for a dependency to add value over the standard
// library. Grounded on
// _examples/original_source/src/bin/build_mapred.rs's per-line
// tokenize_and_map loop and its -d/--docid, -b/--body flags.
package ingest

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"strings"

	"calret/internal/calerr"
)

// Document is one parsed input record.
type Document struct {
	DocID string
	Body  string
}

// Reader streams Documents from one or more bundle files, in the
// order the files and lines appear.
type Reader struct {
	docidField string
	bodyField  string
}

// NewReader creates a Reader extracting docidField as the document
// identifier and bodyField as the text to tokenize.
func NewReader(docidField, bodyField string) *Reader {
	return &Reader{docidField: docidField, bodyField: bodyField}
}

// Each opens every bundle path in order (transparently gunzipping
// files named *.gz) and calls fn once per parsed Document. Each stops
// and returns fn's error if fn returns a non-nil error.
func (r *Reader) Each(paths []string, fn func(Document) error) error {
	for _, path := range paths {
		if err := r.eachInFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) eachInFile(path string, fn func(Document) error) error {
	f, err := os.Open(path)
	if err != nil {
		return calerr.IOErr(path, err)
	}
	defer f.Close()

	var rc io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return calerr.Corruptf(path, "opening gzip stream: %w", err)
		}
		defer gz.Close()
		rc = gz
	}

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return calerr.Corruptf(path, "line %d: invalid JSON: %w", lineNo, err)
		}
		docid, ok := raw[r.docidField].(string)
		if !ok {
			return calerr.Corruptf(path, "line %d: missing or non-string field %q", lineNo, r.docidField)
		}
		body, _ := raw[r.bodyField].(string)
		if err := fn(Document{DocID: docid, Body: body}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return calerr.IOErr(path, err)
	}
	return nil
}

// pair.go
package models

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SentencePair is one question of the survey: two sentences to be rated for similarity.
type SentencePair struct {
	ID        int
	SentenceA string
	SentenceB string
}

// Catalog is the immutable, canonically ordered list of sentence pairs.
type Catalog struct {
	Pairs []SentencePair
	byID  map[int]int
}

// Header aliases accepted in catalog files. The localized names come from the
// first revisions of the survey.
var (
	idHeaders        = []string{"id", "pair_id"}
	sentenceAHeaders = []string{"sentence a", "sentence_a", "문장 a"}
	sentenceBHeaders = []string{"sentence b", "sentence_b", "문장 b"}
	sentenceHeaders  = []string{"sentence", "문장"}
)

var ErrEmptyCatalog = errors.New("catalog contains no sentence pairs")

// NewCatalog indexes pairs by id. Duplicate ids are rejected.
func NewCatalog(pairs []SentencePair) (*Catalog, error) {
	if len(pairs) == 0 {
		return nil, ErrEmptyCatalog
	}
	byID := make(map[int]int, len(pairs))
	for i, p := range pairs {
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pair id %d", p.ID)
		}
		byID[p.ID] = i
	}
	return &Catalog{Pairs: pairs, byID: byID}, nil
}

// Len returns the number of pairs.
func (c *Catalog) Len() int { return len(c.Pairs) }

// At returns the pair at a canonical index.
func (c *Catalog) At(index int) SentencePair { return c.Pairs[index] }

// Lookup finds a pair by its id.
func (c *Catalog) Lookup(id int) (SentencePair, bool) {
	i, ok := c.byID[id]
	if !ok {
		return SentencePair{}, false
	}
	return c.Pairs[i], true
}

// BuildPairs expands a sentence list into every unordered pair (i < j), numbering the
// pairs from 1 in generation order. n sentences give n*(n-1)/2 pairs.
func BuildPairs(sentences []string) []SentencePair {
	n := len(sentences)
	pairs := make([]SentencePair, 0, n*(n-1)/2)
	id := 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, SentencePair{ID: id, SentenceA: sentences[i], SentenceB: sentences[j]})
			id++
		}
	}
	return pairs
}

// LoadCatalog reads a catalog file. A file with sentence A/B columns is taken as-is;
// a single sentence column is expanded with BuildPairs.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	pairs, err := ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return NewCatalog(pairs)
}

// ReadCatalog parses catalog CSV from r.
func ReadCatalog(r io.Reader) ([]SentencePair, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyCatalog
	}

	header := rows[0]
	idCol := findColumn(header, idHeaders)
	aCol := findColumn(header, sentenceAHeaders)
	bCol := findColumn(header, sentenceBHeaders)

	if aCol < 0 || bCol < 0 {
		sCol := findColumn(header, sentenceHeaders)
		if sCol < 0 {
			return nil, fmt.Errorf("unrecognised catalog header %q", header)
		}
		sentences := make([]string, 0, len(rows)-1)
		for _, row := range rows[1:] {
			if sCol < len(row) && strings.TrimSpace(row[sCol]) != "" {
				sentences = append(sentences, strings.TrimSpace(row[sCol]))
			}
		}
		return BuildPairs(sentences), nil
	}

	pairs := make([]SentencePair, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) <= aCol || len(row) <= bCol {
			return nil, fmt.Errorf("line %d: too few columns", line+2)
		}
		id := line + 1
		if idCol >= 0 && idCol < len(row) {
			id, err = strconv.Atoi(strings.TrimSpace(row[idCol]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid id %q: %w", line+2, row[idCol], err)
			}
		}
		pairs = append(pairs, SentencePair{ID: id, SentenceA: row[aCol], SentenceB: row[bCol]})
	}
	return pairs, nil
}

// WriteCatalog writes pairs in the canonical English header layout.
func WriteCatalog(w io.Writer, pairs []SentencePair) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"ID", "Sentence A", "Sentence B"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{strconv.Itoa(p.ID), p.SentenceA, p.SentenceB}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pairsurvey/internal/models"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var pairsOutput string

var pairsCmd = &cobra.Command{
	Use:   "pairs <sentences>",
	Short: "Expand a sentence list into a pair catalog",
	Long: `Build the pair catalog from a list of sentences. Every unordered pair of
distinct sentences becomes one row, so n sentences give n*(n-1)/2 pairs.

The input is either a plain text file with one sentence per line, or a CSV
file with a "sentence" (or "문장") column.`,
	Args: cobra.ExactArgs(1),
	RunE: runPairs,
}

func init() {
	pairsCmd.Flags().StringVarP(&pairsOutput, "output", "o", "data/sentence_pairs.csv", "Catalog file to write")
}

func runPairs(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var pairs []models.SentencePair
	if strings.EqualFold(filepath.Ext(args[0]), ".csv") {
		pairs, err = models.ReadCatalog(f)
	} else {
		var sentences []string
		sentences, err = readLines(f)
		pairs = models.BuildPairs(sentences)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if _, err := models.NewCatalog(pairs); err != nil {
		return err
	}

	var b strings.Builder
	if err := models.WriteCatalog(&b, pairs); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pairsOutput), 0o755); err != nil {
		return err
	}
	if err := atomic.WriteFile(pairsOutput, strings.NewReader(b.String())); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d pairs to %s\n", len(pairs), pairsOutput)
	return nil
}

// readLines returns the non-blank lines of r, trimmed.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff")); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

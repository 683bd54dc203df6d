// survey.go
package models

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// Instruction is one statement the participant must acknowledge before rating.
type Instruction struct {
	Heading string   `yaml:"heading"`
	Details []string `yaml:"details"`
	Confirm string   `yaml:"confirm"`
}

// RatingOption labels one point of the similarity scale.
type RatingOption struct {
	Value int    `yaml:"value"`
	Label string `yaml:"label"`
}

// SurveyContent holds the static texts of the survey screens.
type SurveyContent struct {
	Title        string         `yaml:"title"`
	Prompt       string         `yaml:"prompt"`
	Instructions []Instruction  `yaml:"instructions"`
	RatingScale  []RatingOption `yaml:"rating_scale"`
}

// LoadSurveyContent reads and validates the survey.yaml file.
func LoadSurveyContent(path string) (*SurveyContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read survey content file: %w", err)
	}

	var content SurveyContent
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal survey content YAML: %w", err)
	}
	if err := content.validate(); err != nil {
		return nil, err
	}
	return &content, nil
}

func (c *SurveyContent) validate() error {
	if len(c.Instructions) == 0 {
		return fmt.Errorf("survey content has no instructions")
	}
	if len(c.RatingScale) != MaxRating-MinRating+1 {
		return fmt.Errorf("rating scale must have %d options, got %d", MaxRating-MinRating+1, len(c.RatingScale))
	}
	for i, opt := range c.RatingScale {
		if opt.Value != MinRating+i {
			return fmt.Errorf("rating scale option %d has value %d, want %d", i, opt.Value, MinRating+i)
		}
	}
	return nil
}

// ShuffledOrder returns a random permutation of [0, n) drawn from r.
func ShuffledOrder(n int, r *rand.Rand) []int64 {
	order := make([]int64, n)
	for i, v := range r.Perm(n) {
		order[i] = int64(v)
	}
	return order
}

// CanonicalOrder returns 0..n-1.
func CanonicalOrder(n int) []int64 {
	order := make([]int64, n)
	for i := range order {
		order[i] = int64(i)
	}
	return order
}

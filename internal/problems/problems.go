// Package problems loads the coding-problem bank from its YAML file and
// seeds it into the store at startup.
package problems

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

// BankFile is the top-level structure of the problem bank YAML file.
//
// Example:
//
//	problems:
//	  - number: 1
//	    title: "两数之和"
//	    description: "给定一个整数数组……"
//	    difficulty: easy
//	    tags: [数组, 哈希表]
//	    examples:
//	      - input: "nums = [2,7,11,15], target = 9"
//	        output: "[0,1]"
type BankFile struct {
	Problems []interview.CodingProblem `yaml:"problems"`
}

// LoadBankFile reads and parses a problem bank YAML file from disk.
func LoadBankFile(path string) (*BankFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("problems: open bank file %q: %w", path, err)
	}
	defer f.Close()

	bf, err := LoadBankFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("problems: parse bank file %q: %w", path, err)
	}
	return bf, nil
}

// LoadBankFromReader parses problem bank YAML from an [io.Reader]. Every
// parsed problem is validated; any invalid entry fails the whole load.
func LoadBankFromReader(r io.Reader) (*BankFile, error) {
	var bf BankFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("problems: decode bank yaml: %w", err)
	}

	var errs []error
	for i, p := range bf.Problems {
		if err := Validate(p); err != nil {
			errs = append(errs, fmt.Errorf("problem[%d] (number %d): %w", i, p.Number, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &bf, nil
}

// Validate checks a [interview.CodingProblem] for required fields.
//
// Rules:
//   - Number must be positive and unique within the bank (uniqueness is
//     checked by the store's upsert key).
//   - Title and Description must be non-empty.
//   - Difficulty must be a recognised value.
//   - At least one example must be present.
//   - Every restricted position type must be recognised.
func Validate(p interview.CodingProblem) error {
	var errs []error

	if p.Number <= 0 {
		errs = append(errs, errors.New("number must be positive"))
	}
	if p.Title == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if p.Description == "" {
		errs = append(errs, errors.New("description must not be empty"))
	}
	if !p.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("difficulty %q is not recognised", p.Difficulty))
	}
	if len(p.Examples) == 0 {
		errs = append(errs, errors.New("at least one example is required"))
	}
	for i, pt := range p.PositionTypes {
		if !pt.IsValid() {
			errs = append(errs, fmt.Errorf("position_types[%d]: %q is not recognised", i, pt))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Seed loads the bank file at path and upserts it into st. Returns the
// number of problems seeded.
func Seed(ctx context.Context, st store.ProblemStore, path string) (int, error) {
	bf, err := LoadBankFile(path)
	if err != nil {
		return 0, err
	}
	if err := st.UpsertProblems(ctx, bf.Problems); err != nil {
		return 0, fmt.Errorf("problems: seed bank: %w", err)
	}
	return len(bf.Problems), nil
}

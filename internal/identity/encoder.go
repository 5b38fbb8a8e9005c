package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// LabelEncoder maps identity names to dense integer codes. Codes follow the sorted
// order of the distinct labels it was fitted with.
type LabelEncoder struct {
	classes []string
	codes   map[string]int
}

// FitLabelEncoder builds an encoder over the distinct labels.
func FitLabelEncoder(labels []string) *LabelEncoder {
	seen := make(map[string]bool, len(labels))
	var classes []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	return newLabelEncoder(classes)
}

func newLabelEncoder(classes []string) *LabelEncoder {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &LabelEncoder{classes: classes, codes: codes}
}

// Classes returns the known labels in code order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Encode maps labels to codes.
func (e *LabelEncoder) Encode(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		code, ok := e.codes[l]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, l)
		}
		out[i] = code
	}
	return out, nil
}

// Decode maps codes back to labels.
func (e *LabelEncoder) Decode(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.classes) {
			return nil, fmt.Errorf("%w: code %d", ErrUnknownLabel, c)
		}
		out[i] = e.classes[c]
	}
	return out, nil
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

// Save writes the encoder as JSON.
func (e *LabelEncoder) Save(path string) error {
	data, err := json.MarshalIndent(encoderFile{Classes: e.classes}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal label encoder: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write label encoder: %w", err)
	}
	return nil
}

// LoadLabelEncoder reads an encoder written by Save.
func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read label encoder: %w", err)
	}
	var f encoderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse label encoder: %w", err)
	}
	if !sort.StringsAreSorted(f.Classes) {
		return nil, fmt.Errorf("label encoder %s: classes are not sorted", path)
	}
	return newLabelEncoder(f.Classes), nil
}

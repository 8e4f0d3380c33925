// Package vocab loads the word lists and state/region mapping that seed
// dataset generation.
//
// Lists are plain text, one token per line. Lines are trimmed, blank lines
// are dropped, tokens are NFC-normalized and repeated tokens keep only their
// first occurrence. Order is preserved: generation indexes into these lists,
// so their order is part of the reproducibility contract.
package vocab

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// File names looked up inside a vocabulary directory.
const (
	FirstNamesFile      = "first-names.txt"
	LastNamesFile       = "last-names.txt"
	AccountNounsFile    = "nouns.txt"
	AccountSuffixesFile = "company-suffixes.txt"
	IndustriesFile      = "industries.txt"
	StagesFile          = "stages.txt"
	StateRegionsFile    = "regions.json"
)

//go:embed data
var defaultData embed.FS

// Vocabulary holds every input list used by the generator.
type Vocabulary struct {
	FirstNames      []string
	LastNames       []string
	AccountNouns    []string
	AccountSuffixes []string
	Industries      []string
	Stages          []string

	// StateRegions maps a state code to its region.
	StateRegions map[string]string
}

// Error reports a malformed vocabulary source.
type Error struct {
	Source  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("vocab %s: %s", e.Source, e.Message)
}

// Default returns the vocabulary bundled with the binary.
func Default() (*Vocabulary, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, fmt.Errorf("open bundled vocab: %w", err)
	}
	return LoadFS(sub)
}

// Load reads a vocabulary from a directory on disk.
func Load(dir string) (*Vocabulary, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads a vocabulary from fsys using the standard file names.
func LoadFS(fsys fs.FS) (*Vocabulary, error) {
	v := &Vocabulary{}
	lists := []struct {
		name string
		dst  *[]string
	}{
		{FirstNamesFile, &v.FirstNames},
		{LastNamesFile, &v.LastNames},
		{AccountNounsFile, &v.AccountNouns},
		{AccountSuffixesFile, &v.AccountSuffixes},
		{IndustriesFile, &v.Industries},
		{StagesFile, &v.Stages},
	}
	for _, l := range lists {
		f, err := fsys.Open(l.name)
		if err != nil {
			return nil, fmt.Errorf("missing required vocab file %s: %w", l.name, err)
		}
		items, err := ParseList(f, l.name)
		f.Close()
		if err != nil {
			return nil, err
		}
		*l.dst = items
	}

	raw, err := fs.ReadFile(fsys, StateRegionsFile)
	if err != nil {
		return nil, fmt.Errorf("missing required vocab file %s: %w", StateRegionsFile, err)
	}
	v.StateRegions, err = ParseStateRegions(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ParseList reads one token per line. source names the list in errors.
func ParseList(r io.Reader, source string) ([]string, error) {
	var items []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		token := norm.NFC.String(strings.TrimSpace(scanner.Text()))
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		items = append(items, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab %s: %w", source, err)
	}
	if len(items) == 0 {
		return nil, &Error{Source: source, Message: "empty after removing blank lines"}
	}
	return items, nil
}

// ParseStateRegions decodes a state->region mapping. Two shapes are
// accepted:
//
//	{"CA": "West", "NY": "Northeast"}
//	{"states": [{"state": "CA", "region": "West"}]}
func ParseStateRegions(data []byte) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &Error{Source: StateRegionsFile, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if rawStates, ok := obj["states"]; ok && bytes.HasPrefix(bytes.TrimSpace(rawStates), []byte("[")) {
		var entries []struct {
			State  string `json:"state"`
			Region string `json:"region"`
		}
		if err := json.Unmarshal(rawStates, &entries); err != nil {
			return nil, &Error{Source: StateRegionsFile, Message: fmt.Sprintf("invalid states list: %v", err)}
		}
		mapping := make(map[string]string, len(entries))
		for _, e := range entries {
			st, rg := norm.NFC.String(strings.TrimSpace(e.State)), norm.NFC.String(strings.TrimSpace(e.Region))
			if st == "" || rg == "" {
				continue
			}
			mapping[st] = rg
		}
		if len(mapping) == 0 {
			return nil, &Error{Source: StateRegionsFile, Message: "states list has no usable entries"}
		}
		return mapping, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, &Error{
			Source:  StateRegionsFile,
			Message: `unsupported shape, want {"CA": "West", ...} or {"states": [{"state": "CA", "region": "West"}, ...]}`,
		}
	}
	mapping := make(map[string]string, len(flat))
	for st, rg := range flat {
		st, rg = norm.NFC.String(strings.TrimSpace(st)), norm.NFC.String(strings.TrimSpace(rg))
		if st == "" || rg == "" {
			continue
		}
		mapping[st] = rg
	}
	if len(mapping) == 0 {
		return nil, &Error{Source: StateRegionsFile, Message: "no state/region pairs found"}
	}
	return mapping, nil
}

// Regions returns the distinct regions, sorted.
func (v *Vocabulary) Regions() []string {
	set := make(map[string]struct{})
	for _, rg := range v.StateRegions {
		set[rg] = struct{}{}
	}
	regions := make([]string, 0, len(set))
	for rg := range set {
		regions = append(regions, rg)
	}
	sort.Strings(regions)
	return regions
}

// StatesIn returns the states mapped to region, sorted.
func (v *Vocabulary) StatesIn(region string) []string {
	var states []string
	for st, rg := range v.StateRegions {
		if rg == region {
			states = append(states, st)
		}
	}
	sort.Strings(states)
	return states
}

// Validate reports the first missing list. Industries and stages must also
// be free of repeats: each industry becomes exactly one territory.
func (v *Vocabulary) Validate() error {
	checks := []struct {
		name  string
		items []string
	}{
		{FirstNamesFile, v.FirstNames},
		{LastNamesFile, v.LastNames},
		{AccountNounsFile, v.AccountNouns},
		{AccountSuffixesFile, v.AccountSuffixes},
		{IndustriesFile, v.Industries},
		{StagesFile, v.Stages},
	}
	for _, c := range checks {
		if len(c.items) == 0 {
			return &Error{Source: c.name, Message: "list is empty"}
		}
	}
	if len(v.StateRegions) == 0 {
		return &Error{Source: StateRegionsFile, Message: "mapping is empty"}
	}
	for _, c := range checks {
		if c.name != IndustriesFile && c.name != StagesFile {
			continue
		}
		seen := make(map[string]bool, len(c.items))
		for _, item := range c.items {
			if seen[item] {
				return &Error{Source: c.name, Message: fmt.Sprintf("duplicate entry %q", item)}
			}
			seen[item] = true
		}
	}
	return nil
}

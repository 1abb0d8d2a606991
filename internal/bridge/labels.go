/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package bridge

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/friendsincode/fleetrota/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Normalize folds a free-text route label for lookup: accents stripped,
// case folded, punctuation and whitespace runs collapsed to one space.
func Normalize(label string) string {
	// Transformers carry state; build one per call.
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(strip, label)
	if err != nil {
		folded = label
	}
	folded = cases.Fold().String(folded)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// Aliases maps a route id or route name to the extra labels the external
// feed uses for it.
type Aliases map[string][]string

type aliasFile struct {
	Routes Aliases `yaml:"routes"`
}

// LoadAliases reads an alias file:
//
//	routes:
//	  A:
//	    - Ruta Norte
//	    - norte express
func LoadAliases(path string) (Aliases, error) {
	if path == "" {
		return Aliases{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route aliases: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse route aliases: %w", err)
	}
	if f.Routes == nil {
		f.Routes = Aliases{}
	}
	return f.Routes, nil
}

// LabelIndex resolves normalized labels to catalog routes.
type LabelIndex struct {
	byLabel map[string]models.Route

	// Alias keys that matched no route in the catalog.
	Orphans []string
}

// NewLabelIndex indexes every route under its id and name plus its aliases.
// Direct ids and names win over aliases when they collide.
func NewLabelIndex(routes []models.Route, aliases Aliases) *LabelIndex {
	idx := &LabelIndex{byLabel: make(map[string]models.Route, len(routes)*2)}
	byKey := make(map[string]models.Route, len(routes)*2)
	for _, r := range routes {
		byKey[Normalize(r.ID)] = r
		byKey[Normalize(r.Name)] = r
	}

	for key, labels := range aliases {
		r, ok := byKey[Normalize(key)]
		if !ok {
			idx.Orphans = append(idx.Orphans, key)
			continue
		}
		for _, label := range labels {
			if n := Normalize(label); n != "" {
				idx.byLabel[n] = r
			}
		}
	}
	for label, r := range byKey {
		if label != "" {
			idx.byLabel[label] = r
		}
	}
	sort.Strings(idx.Orphans)
	return idx
}

// Resolve returns the route a label refers to.
func (idx *LabelIndex) Resolve(label string) (models.Route, bool) {
	r, ok := idx.byLabel[Normalize(label)]
	return r, ok
}

// Package source fetches sanctions lists and normalizes them into candidate records.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

// Adapter fetches the full record set of one sanctions source. Adapters
// never touch the cache.
type Adapter interface {
	// ID returns the source identifier, which equals its Kind.
	ID() string
	// Fetch downloads and normalizes the source. Failures are *FetchError.
	Fetch(ctx context.Context) ([]model.CandidateRecord, error)
}

// Kind is the closed set of supported sources.
type Kind string

const (
	KindOpenSanctions Kind = "opensanctions"
	KindOFAC          Kind = "ofac"
	KindUK            Kind = "uk"
	KindEU            Kind = "eu"
	KindUN            Kind = "un"
)

// Settings configures one adapter instance.
type Settings struct {
	URL      string
	AliasURL string // OFAC alternate names list; optional
	APIKey   string
	Member   string // file to pick when the payload is a multi-file ZIP
	Sheet    string // XLSX sheet name
}

// Descriptor is the static registry entry of a Kind.
type Descriptor struct {
	Kind            Kind
	Name            string
	Primary         bool
	DefaultURL      string
	DefaultAliasURL string
	RequiresAPIKey  bool
	build           func(base feed) Adapter
}

var descriptors = []Descriptor{
	{
		Kind:           KindOpenSanctions,
		Name:           "OpenSanctions",
		Primary:        true,
		DefaultURL:     "https://data.opensanctions.org/datasets/latest/sanctions/entities.ftm.json",
		RequiresAPIKey: true,
		build:          func(b feed) Adapter { return &OpenSanctions{feed: b} },
	},
	{
		Kind:            KindOFAC,
		Name:            "OFAC SDN",
		DefaultURL:      "https://www.treasury.gov/ofac/downloads/sdn.csv",
		DefaultAliasURL: "https://www.treasury.gov/ofac/downloads/alt.csv",
		build:           func(b feed) Adapter { return &OFAC{feed: b} },
	},
	{
		Kind:       KindUK,
		Name:       "UK OFSI Consolidated List",
		DefaultURL: "https://ofsistorage.blob.core.windows.net/publishlive/2022format/ConList.csv",
		build:      func(b feed) Adapter { return &UK{feed: b} },
	},
	{
		Kind:       KindEU,
		Name:       "EU Vessel List",
		DefaultURL: "https://www.dma.dk/Media/638150498093418962/EU-sanctioned-vessels.xlsx",
		build:      func(b feed) Adapter { return &EU{feed: b} },
	},
	{
		Kind:       KindUN,
		Name:       "UN Security Council Consolidated List",
		DefaultURL: "https://scsanctions.un.org/resources/xml/en/consolidated.xml",
		build:      func(b feed) Adapter { return &UN{feed: b} },
	},
}

// Kinds returns every registered kind in default priority order, primary first.
func Kinds() []Kind {
	out := make([]Kind, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.Kind
	}
	return out
}

// DefaultPriority returns the default source priority as plain IDs.
func DefaultPriority() []string {
	out := make([]string, len(descriptors))
	for i, d := range descriptors {
		out[i] = string(d.Kind)
	}
	return out
}

// Lookup returns the descriptor for kind.
func Lookup(kind Kind) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Kind == kind {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ParseKind validates a configured source ID.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Lookup(k); !ok {
		return "", eris.Errorf("source: unknown source %q", s)
	}
	return k, nil
}

// New constructs the adapter for kind.
func New(kind Kind, s Settings, f fetcher.Fetcher) (Adapter, error) {
	d, ok := Lookup(kind)
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", kind)
	}
	if s.URL == "" {
		s.URL = d.DefaultURL
	}
	if s.AliasURL == "" {
		s.AliasURL = d.DefaultAliasURL
	}
	return d.build(feed{id: string(kind), settings: s, fetcher: f, now: time.Now}), nil
}

// Build constructs adapters for ids in the given order. Sources that need an
// API key and have none are left out so the run degrades to the rest.
func Build(ids []string, settings map[string]Settings, f fetcher.Fetcher) ([]Adapter, error) {
	seen := make(map[Kind]bool, len(ids))
	adapters := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		kind, err := ParseKind(id)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			return nil, eris.Errorf("source: %q listed twice in priority", id)
		}
		seen[kind] = true

		d, _ := Lookup(kind)
		s := settings[string(kind)]
		if d.RequiresAPIKey && s.APIKey == "" {
			zap.L().Info("source: no api key, skipping source", zap.String("source", string(kind)))
			continue
		}

		a, err := New(kind, s, f)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

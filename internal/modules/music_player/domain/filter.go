package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Filter is a named audio effect applied by the transcoder.
type Filter string

const (
	FilterBassBoost Filter = "bassboost"
	FilterNightcore Filter = "nightcore"
	FilterVaporwave Filter = "vaporwave"
	Filter8D        Filter = "8d"
	FilterKaraoke   Filter = "karaoke"
	FilterEcho      Filter = "echo"
	FilterNormalize Filter = "normalize"
)

type filterSpec struct {
	chain string
	tempo float64
}

// filterOrder fixes the position of each filter in the combined graph.
var filterOrder = []Filter{
	FilterNightcore,
	FilterVaporwave,
	FilterBassBoost,
	FilterKaraoke,
	FilterEcho,
	Filter8D,
	FilterNormalize,
}

var filterSpecs = map[Filter]filterSpec{
	FilterBassBoost: {chain: "bass=g=10:f=110:w=0.6", tempo: 1},
	FilterNightcore: {chain: "aresample=48000,asetrate=48000*1.25,aresample=48000", tempo: 1.25},
	FilterVaporwave: {chain: "aresample=48000,asetrate=48000*0.8,aresample=48000", tempo: 0.8},
	Filter8D:        {chain: "apulsator=hz=0.125", tempo: 1},
	FilterKaraoke:   {chain: "stereotools=mlev=0.03", tempo: 1},
	FilterEcho:      {chain: "aecho=0.8:0.88:60:0.4", tempo: 1},
	FilterNormalize: {chain: "dynaudnorm=f=200", tempo: 1},
}

// ParseFilter converts a filter name to a Filter.
func ParseFilter(name string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := filterSpecs[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return f, nil
}

// AllFilters returns every supported filter in graph order.
func AllFilters() []Filter {
	return slices.Clone(filterOrder)
}

// FilterSet is the set of filters enabled in a room.
type FilterSet map[Filter]struct{}

// Enabled returns the enabled filters in graph order.
func (s FilterSet) Enabled() []Filter {
	enabled := make([]Filter, 0, len(s))
	for _, f := range filterOrder {
		if _, ok := s[f]; ok {
			enabled = append(enabled, f)
		}
	}
	return enabled
}

// Graph returns the ffmpeg audio filter graph for the set, or "" when empty.
func (s FilterSet) Graph() string {
	chains := make([]string, 0, len(s))
	for _, f := range s.Enabled() {
		chains = append(chains, filterSpecs[f].chain)
	}
	return strings.Join(chains, ",")
}

// Tempo returns how much faster than real time the source advances through the graph.
func (s FilterSet) Tempo() float64 {
	tempo := 1.0
	for _, f := range s.Enabled() {
		tempo *= filterSpecs[f].tempo
	}
	return tempo
}

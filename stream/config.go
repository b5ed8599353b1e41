package stream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bgpstream/bgpstream/filter"
)

// Config is additive sugar over the code-configured path: every field maps
// 1:1 onto a Filter Store Add/AddInterval/SetRIBPeriod call or a catalogue
// option, following the koanf idiom of pobradovic08-route-beacon-ri's
// internal/config (defaults populated before Unmarshal, env overlay,
// explicit Validate).
type Config struct {
	Catalogue CatalogueConfig `koanf:"catalogue"`
	Filters   FiltersConfig   `koanf:"filters"`
}

// CatalogueConfig selects and configures a broker.Catalogue variant.
type CatalogueConfig struct {
	Name    string            `koanf:"name"`
	Options map[string]string `koanf:"options"`
}

// IntervalConfig is one [begin, end] time window; an absent End means
// live (filter.Live).
type IntervalConfig struct {
	Begin int64  `koanf:"begin"`
	End   *int64 `koanf:"end"`
}

// PrefixConfig is one prefix filter entry; Kind is one of
// any/more/less/exact, defaulting to more (spec.md §4.8).
type PrefixConfig struct {
	Kind  string `koanf:"kind"`
	Value string `koanf:"value"`
}

// FiltersConfig mirrors every axis of filter.Store.
type FiltersConfig struct {
	Projects         []string         `koanf:"projects"`
	Collectors       []string         `koanf:"collectors"`
	Types            []string         `koanf:"types"`
	ElemTypes        []string         `koanf:"elem_types"`
	Intervals        []IntervalConfig `koanf:"intervals"`
	PeerASNs         []string         `koanf:"peer_asns"`
	Prefixes         []PrefixConfig   `koanf:"prefixes"`
	Communities      []string         `koanf:"communities"`
	ASPathRegexps    []string         `koanf:"aspath_regexps"`
	IPVersions       []string         `koanf:"ip_versions"`
	RIBPeriodSeconds int64            `koanf:"rib_period_seconds"`
}

// envPrefix is the env-var namespace for BGPSTREAM_CATALOGUE__NAME-style
// overrides, mirroring RIB_INGESTER_'s KAFKA__BROKERS convention.
const envPrefix = "BGPSTREAM_"

// LoadConfig reads path (if non-empty) as YAML, overlays BGPSTREAM_-
// prefixed environment variables, and returns a validated Config.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("stream: loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("stream: loading env config: %w", err)
	}

	cfg := &Config{
		Catalogue: CatalogueConfig{
			Name: "broker",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("stream: unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields LoadConfig/Apply can't recover from later:
// an unnamed catalogue, an inverted interval, or a malformed peer ASN.
func (c *Config) Validate() error {
	if c.Catalogue.Name == "" {
		return fmt.Errorf("stream: config: catalogue.name is required")
	}
	for _, iv := range c.Filters.Intervals {
		if iv.End != nil && *iv.End < iv.Begin {
			return fmt.Errorf("stream: config: interval [%d, %d] has end before begin", iv.Begin, *iv.End)
		}
	}
	for _, v := range c.Filters.PeerASNs {
		if _, err := strconv.ParseUint(v, 10, 32); err != nil {
			return fmt.Errorf("stream: config: invalid peer_asns entry %q: %w", v, err)
		}
	}
	return nil
}

// Apply configures an allocated Stream from c. It must run before Start;
// every call goes through the Stream's own Add* methods, so it fails the
// same way manual configuration would if called too late.
func (c *Config) Apply(s *Stream) error {
	s.opts.CatalogueName = c.Catalogue.Name
	s.opts.CatalogueOpts = c.Catalogue.Options

	for _, v := range c.Filters.Projects {
		if err := s.AddFilter(filter.KindProject, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.Collectors {
		if err := s.AddFilter(filter.KindCollector, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.Types {
		if err := s.AddFilter(filter.KindDumpKind, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.ElemTypes {
		if err := s.AddFilter(filter.KindElemKind, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.PeerASNs {
		if err := s.AddFilter(filter.KindPeerASN, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.Communities {
		if err := s.AddFilter(filter.KindCommunity, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.ASPathRegexps {
		if err := s.AddFilter(filter.KindASPath, v); err != nil {
			return err
		}
	}
	for _, v := range c.Filters.IPVersions {
		if err := s.AddFilter(filter.KindIPVersion, v); err != nil {
			return err
		}
	}
	for _, p := range c.Filters.Prefixes {
		kind, err := prefixKind(p.Kind)
		if err != nil {
			return err
		}
		if err := s.AddFilter(kind, p.Value); err != nil {
			return err
		}
	}
	for _, iv := range c.Filters.Intervals {
		end := filter.Live
		if iv.End != nil {
			end = *iv.End
		}
		if err := s.AddInterval(iv.Begin, end); err != nil {
			return err
		}
	}
	if c.Filters.RIBPeriodSeconds != 0 {
		if err := s.SetRIBPeriod(c.Filters.RIBPeriodSeconds); err != nil {
			return err
		}
	}
	return nil
}

func prefixKind(kind string) (filter.Kind, error) {
	switch kind {
	case "", "more":
		return filter.KindPrefixMore, nil
	case "less":
		return filter.KindPrefixLess, nil
	case "exact":
		return filter.KindPrefixExact, nil
	case "any":
		return filter.KindPrefixAny, nil
	default:
		return "", fmt.Errorf("stream: config: invalid prefix kind %q, want any/more/less/exact", kind)
	}
}

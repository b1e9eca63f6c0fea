package dimension

import (
	"errors"
	"testing"
)

func languageAudienceConfig() Config {
	return Config{Dimensions: []DimensionConfig{
		{
			Name:    "language",
			Kind:    KindLanguage,
			Default: "en",
			Values: map[string]ValueConfig{
				"en":    {},
				"de":    {Fallback: "en"},
				"de_CH": {Fallback: "de"},
				"fr":    {},
			},
		},
		{
			Name:    "audience",
			Default: "all",
			Values: map[string]ValueConfig{
				"all":     {},
				"members": {Fallback: "all"},
			},
		},
	}}
}

func point(language, audience string) Point {
	return MustPoint(map[string]string{"language": language, "audience": audience})
}

func TestResolveFallbackChainOrdersByFirstDimension(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	chain, err := r.ResolveFallbackChain(point("de_CH", "members"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []Point{
		point("de_CH", "members"),
		point("de_CH", "all"),
		point("de", "members"),
		point("de", "all"),
		point("en", "members"),
		point("en", "all"),
	}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d: %v", len(chain), len(want), chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, chain[i], want[i])
		}
	}
}

func TestFallbackChainTotality(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	roots := NewPointSet(point("en", "all"), point("fr", "all"))
	for _, p := range r.AllPoints().Points() {
		chain, err := r.ResolveFallbackChain(p)
		if err != nil {
			t.Fatalf("resolve %s: %v", p, err)
		}
		if len(chain) == 0 || chain[0] != p {
			t.Fatalf("chain for %s must start with the point itself: %v", p, chain)
		}
		if last := chain[len(chain)-1]; !roots.Contains(last) {
			t.Fatalf("chain for %s ends at %s, want a root point", p, last)
		}
	}
	if r.AllPoints().Len() != 8 {
		t.Fatalf("space size = %d, want 8", r.AllPoints().Len())
	}
}

func TestSpecializations(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	got, err := r.Specializations(point("de", "all"))
	if err != nil {
		t.Fatalf("specializations: %v", err)
	}
	want := NewPointSet(
		point("de", "all"), point("de", "members"),
		point("de_CH", "all"), point("de_CH", "members"),
	)
	if !got.Equal(want) {
		t.Fatalf("specializations = %v, want %v", got.Points(), want.Points())
	}
	if !r.FallsBackTo(point("de_CH", "members"), point("en", "all")) {
		t.Fatal("expected de_CH/members to fall back to en/all")
	}
	if r.FallsBackTo(point("fr", "all"), point("en", "all")) {
		t.Fatal("fr must not fall back to en")
	}
}

func TestResolveVisibleOrigin(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	occupied := NewPointSet(point("en", "all"), point("de", "members"))
	got, ok := r.ResolveVisibleOrigin(point("de_CH", "members"), occupied)
	if !ok || got != point("de", "members") {
		t.Fatalf("visible origin = %s (%v), want de/members", got, ok)
	}
	if _, ok := r.ResolveVisibleOrigin(point("fr", "members"), occupied); ok {
		t.Fatal("fr has no variant and no fallback into occupied points")
	}
}

func TestNewResolverConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		dim  DimensionConfig
		want error
	}{
		{
			name: "cycle",
			dim: DimensionConfig{Name: "language", Values: map[string]ValueConfig{
				"en": {}, "de": {Fallback: "ch"}, "ch": {Fallback: "de"},
			}},
			want: ErrFallbackCycle,
		},
		{
			name: "unknown fallback",
			dim:  DimensionConfig{Name: "language", Values: map[string]ValueConfig{"de": {Fallback: "en"}}},
			want: ErrUnknownFallback,
		},
		{
			name: "default not root",
			dim: DimensionConfig{Name: "language", Default: "de", Values: map[string]ValueConfig{
				"en": {}, "de": {Fallback: "en"},
			}},
			want: ErrUnknownDefault,
		},
		{
			name: "invalid language",
			dim:  DimensionConfig{Name: "language", Kind: KindLanguage, Values: map[string]ValueConfig{"not a tag!": {}}},
			want: ErrInvalidLanguage,
		},
		{
			name: "no values",
			dim:  DimensionConfig{Name: "language"},
			want: ErrDimensionInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver(Config{Dimensions: []DimensionConfig{tc.dim}})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestResolverWithoutDimensions(t *testing.T) {
	r, err := NewResolver(Config{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	chain, err := r.ResolveFallbackChain(Point{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(chain) != 1 || !chain[0].IsEmpty() {
		t.Fatalf("chain = %v, want [{}]", chain)
	}
}

func TestUnknownPointIsRejectedAtLookup(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	if _, err := r.ResolveFallbackChain(point("es", "all")); !errors.Is(err, ErrPointNotInSpace) {
		t.Fatalf("err = %v, want ErrPointNotInSpace", err)
	}
}

func TestGeneralizations(t *testing.T) {
	r, err := NewResolver(languageAudienceConfig())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	got, err := r.Generalizations(point("de", "members"))
	if err != nil {
		t.Fatalf("generalizations: %v", err)
	}
	want := NewPointSet(point("de", "members"), point("de", "all"), point("en", "members"), point("en", "all"))
	if !got.Equal(want) {
		t.Fatalf("generalizations = %v, want %v", got.Points(), want.Points())
	}
	if !r.IsGeneralizationOf(point("en", "all"), point("de", "members")) {
		t.Fatal("en/all generalizes de/members")
	}
	if r.IsGeneralizationOf(point("de", "members"), point("en", "all")) {
		t.Fatal("de/members does not generalize en/all")
	}
}

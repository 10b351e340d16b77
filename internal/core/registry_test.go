package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionbank/internal/config"
	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

func TestRegistryLookupByNameAndPrefix(t *testing.T) {
	r := MustDefaultRegistry()
	for _, key := range []string{"verbal", "VERBAL", "V", "v"} {
		spec, err := r.Lookup(key)
		require.NoError(t, err, key)
		assert.Equal(t, "verbal", spec.Name)
	}
	spec, err := r.Lookup("exam")
	require.NoError(t, err)
	assert.Equal(t, "assessments", spec.Name)
	assert.False(t, spec.Contiguous())

	_, err = r.Lookup("reading")
	assert.ErrorIs(t, err, domain.ErrUnknownCollection)
}

func TestRegistryRejectsAmbiguousKeys(t *testing.T) {
	_, err := NewRegistry(
		CollectionSpec{Name: "verbal", Format: sequence.Format{Prefix: "V", Separator: "-", Width: 3}},
		CollectionSpec{Name: "vocab", Format: sequence.Format{Prefix: "v", Separator: "-", Width: 3}},
	)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewRegistry(
		CollectionSpec{Name: "verbal", Format: sequence.Format{Prefix: "V", Separator: "-", Width: 3}},
		CollectionSpec{Name: "verbal", Format: sequence.Format{Prefix: "VB", Separator: "-", Width: 3}},
	)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistryValidatesSpecs(t *testing.T) {
	cases := map[string]CollectionSpec{
		"empty name":     {Format: sequence.Format{Prefix: "V"}},
		"empty prefix":   {Name: "verbal"},
		"unknown policy": {Name: "verbal", Format: sequence.Format{Prefix: "V"}, Policy: "random"},
		"digit prefix":   {Name: "verbal", Format: sequence.Format{Prefix: "V1"}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(spec)
			assert.Error(t, err)
		})
	}
}

func TestRegistrySpecsSorted(t *testing.T) {
	specs := MustDefaultRegistry().Specs()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"assessments", "data_sufficiency", "verbal"}, names)
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collections = append(cfg.Collections, config.Collection{Name: "reading", Prefix: "RC", Separator: "-", Width: 2, Allocator: "count", Overflow: "expand"})
	r, err := RegistryFromConfig(cfg)
	require.NoError(t, err)
	spec, err := r.Lookup("rc")
	require.NoError(t, err)
	assert.Equal(t, sequence.OverflowExpand, spec.Format.Overflow)
	assert.Equal(t, sequence.PolicyCount, spec.Policy)

	want := MustDefaultRegistry().Specs()
	got, err := RegistryFromConfig(config.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, want, got.Specs())
}

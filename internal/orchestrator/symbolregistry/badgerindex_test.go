// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbolregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge/orchestrator/internal/orchestrator/model"
)

func TestBadgerIndex_PutThenGetRoundTrips(t *testing.T) {
	idx, err := OpenInMemoryBadgerIndex()
	require.NoError(t, err)
	defer idx.Close()

	sym := model.Symbol{
		FullyQualifiedName: "Widgets.Foo",
		SimpleName:         "Foo",
		Namespace:          "Widgets",
		Kind:               model.SymbolType,
		SourceTaskID:       "t1",
	}
	require.NoError(t, idx.Put(sym))

	got, found, err := idx.Get("Widgets.Foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sym, got)
}

func TestBadgerIndex_GetMissingKeyReportsNotFound(t *testing.T) {
	idx, err := OpenInMemoryBadgerIndex()
	require.NoError(t, err)
	defer idx.Close()

	_, found, err := idx.Get("Widgets.Missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerIndex_AllReturnsEverythingPut(t *testing.T) {
	idx, err := OpenInMemoryBadgerIndex()
	require.NoError(t, err)
	defer idx.Close()

	syms := []model.Symbol{
		{FullyQualifiedName: "Widgets.Foo", SimpleName: "Foo", SourceTaskID: "t1"},
		{FullyQualifiedName: "Widgets.Bar", SimpleName: "Bar", SourceTaskID: "t2"},
	}
	for _, s := range syms {
		require.NoError(t, idx.Put(s))
	}

	all, err := idx.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpenBadgerIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenBadgerIndex(dir)
	require.NoError(t, err)
	sym := model.Symbol{FullyQualifiedName: "Widgets.Foo", SimpleName: "Foo", SourceTaskID: "t1"}
	require.NoError(t, idx.Put(sym))
	require.NoError(t, idx.Close())

	reopened, err := OpenBadgerIndex(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.Get("Widgets.Foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sym, got)
}

func TestRegistry_TryRegisterWritesThroughToIndex(t *testing.T) {
	idx, err := OpenInMemoryBadgerIndex()
	require.NoError(t, err)
	defer idx.Close()

	r := New()
	r.Index = idx

	sym := model.Symbol{FullyQualifiedName: "Widgets.Foo", SimpleName: "Foo", SourceTaskID: "t1"}
	inserted, collision := r.TryRegister(sym)
	assert.True(t, inserted)
	assert.Nil(t, collision)

	got, found, err := idx.Get("Widgets.Foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sym, got)
}

func TestNewWithIndex_PrepopulatesFromExistingEntries(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenBadgerIndex(dir)
	require.NoError(t, err)
	sym := model.Symbol{FullyQualifiedName: "Widgets.Foo", SimpleName: "Foo", SourceTaskID: "t1"}
	require.NoError(t, idx.Put(sym))
	require.NoError(t, idx.Close())

	reopened, err := OpenBadgerIndex(dir)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := NewWithIndex(reopened)
	require.NoError(t, err)

	assert.Equal(t, []model.Symbol{sym}, r.BySimpleName("Foo"))
	assert.Equal(t, []model.Symbol{sym}, r.BySourceTask("t1"))

	inserted, _ := r.TryRegister(sym)
	assert.False(t, inserted, "fully-qualified name already known from the index")
}

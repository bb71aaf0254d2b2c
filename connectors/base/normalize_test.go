// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package base

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("failed to decode test payload: %v", err)
	}
	return v
}

func TestNormalizeItems_WrappedFiles(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"files":[{"name":"a.txt"},{"name":"b.txt"}]}`))
	if !ok {
		t.Fatal("expected shape match")
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "a.txt" {
		t.Errorf("expected a.txt, got %s", items[0].Name)
	}
}

func TestNormalizeItems_WrappedItems(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"items":[{"id":"1","name":"one"}]}`))
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %d (ok=%v)", len(items), ok)
	}
	if items[0].ID != "1" {
		t.Errorf("expected id 1, got %s", items[0].ID)
	}
}

func TestNormalizeItems_WrappedData(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"data":[{"name":"wf1"},{"name":"wf2"},{"name":"wf3"}]}`))
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 items, got %d (ok=%v)", len(items), ok)
	}
}

func TestNormalizeItems_BareArray(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `[{"name":"x"},{"name":"y"}]`))
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %d (ok=%v)", len(items), ok)
	}
}

func TestNormalizeItems_SingleElementArrayWrappingObject(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `[{"files":[{"name":"inner.txt"}]}]`))
	if !ok {
		t.Fatal("expected shape match")
	}
	if len(items) != 1 || items[0].Name != "inner.txt" {
		t.Fatalf("expected inner list to be unwrapped, got %+v", items)
	}
}

func TestNormalizeItems_StringArray(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `["alpha","beta"]`))
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %d (ok=%v)", len(items), ok)
	}
	if items[1].Name != "beta" {
		t.Errorf("expected beta, got %s", items[1].Name)
	}
}

func TestNormalizeItems_SingleObject(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"name":"only"}`))
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %d (ok=%v)", len(items), ok)
	}
}

func TestNormalizeItems_EmptyWrappedList(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"items":[]}`))
	if !ok {
		t.Fatal("expected shape match")
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %d", len(items))
	}
}

func TestNormalizeItems_UnknownShape(t *testing.T) {
	if _, ok := NormalizeItems(42.0); ok {
		t.Error("expected no shape match for scalar payload")
	}
}

func TestNormalizeItems_TitleFallback(t *testing.T) {
	items, ok := NormalizeItems(decode(t, `{"items":[{"title":"titled"}]}`))
	if !ok || len(items) != 1 || items[0].Name != "titled" {
		t.Fatalf("expected title fallback, got %+v", items)
	}
}

// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package base

import "fmt"

// itemKeys is the fixed priority order of wrapper keys checked when an
// upstream response is an object. Low-code webhook backends are not
// guaranteed to return a stable contract, so all known shapes are accepted.
var itemKeys = []string{"files", "items", "data", "workflows", "channels", "databases"}

// NormalizeItems resolves a decoded upstream payload to the canonical item
// list. Accepted shapes, in priority order:
//
//	{"files": [...]}, {"items": [...]}, {"data": [...]}, ... (wrapped list)
//	[...]                                                    (bare array)
//	[{"files": [...]}]                                       (single-element array wrapping an object)
//	{...}                                                    (single object, one item)
//
// The second return value reports whether any recognizable shape matched.
func NormalizeItems(payload interface{}) ([]Item, bool) {
	switch v := payload.(type) {
	case map[string]interface{}:
		for _, key := range itemKeys {
			if wrapped, ok := v[key]; ok {
				if list, ok := wrapped.([]interface{}); ok {
					return convertList(list), true
				}
			}
		}
		// Plain object with no wrapper key: treat as a single item.
		if item, ok := convertItem(v); ok {
			return []Item{item}, true
		}
		return nil, false

	case []interface{}:
		// A single-element array wrapping an object is unwrapped first so
		// [{"files": [...]}] resolves to the inner list, not one item.
		if len(v) == 1 {
			if inner, ok := v[0].(map[string]interface{}); ok {
				for _, key := range itemKeys {
					if wrapped, ok := inner[key]; ok {
						if list, ok := wrapped.([]interface{}); ok {
							return convertList(list), true
						}
					}
				}
			}
		}
		return convertList(v), true

	case nil:
		return nil, true

	default:
		return nil, false
	}
}

func convertList(list []interface{}) []Item {
	items := make([]Item, 0, len(list))
	for _, entry := range list {
		switch e := entry.(type) {
		case map[string]interface{}:
			if item, ok := convertItem(e); ok {
				items = append(items, item)
			}
		case string:
			items = append(items, Item{Name: e})
		default:
			items = append(items, Item{Name: fmt.Sprintf("%v", e)})
		}
	}
	return items
}

func convertItem(m map[string]interface{}) (Item, bool) {
	item := Item{}
	if id, ok := m["id"].(string); ok {
		item.ID = id
	} else if id, ok := m["id"].(float64); ok {
		item.ID = fmt.Sprintf("%.0f", id)
	}
	for _, key := range []string{"name", "title", "label", "filename"} {
		if name, ok := m[key].(string); ok && name != "" {
			item.Name = name
			return item, true
		}
	}
	if item.ID != "" {
		item.Name = item.ID
		return item, true
	}
	return Item{}, false
}

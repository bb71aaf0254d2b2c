// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"fmt"
	"strings"

	"clouddeck/hub/connectors/base"
)

// nextInstanceID derives the id and default display name for a new instance
// of a multi-instance family. The first instance is named after the family;
// later instances get a numeric suffix computed from the count of ids that
// already belong to the family.
//
// The count-based numbering is deliberate: removing an interior instance
// while a later one exists makes a new add reuse the survivor's display
// number. Survivors are never renumbered because saved automation
// references point at their ids. The duplicate display number is kept as-is
// (see the numbering test); only the id is advanced past live entries,
// since two records cannot share an id.
func nextInstanceID(existingIDs []string, family base.Family) (id, displayName string) {
	prefix := string(family)
	count := 0
	live := make(map[string]struct{}, len(existingIDs))
	for _, existing := range existingIDs {
		live[existing] = struct{}{}
		if existing == prefix || strings.HasPrefix(existing, prefix+"-") {
			count++
		}
	}

	if count == 0 {
		return prefix, prefix
	}
	n := count + 1
	displayName = fmt.Sprintf("%s %d", prefix, n)
	for m := n; ; m++ {
		id = fmt.Sprintf("%s-%d", prefix, m)
		if _, taken := live[id]; !taken {
			return id, displayName
		}
	}
}

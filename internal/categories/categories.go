// Package categories maps action names to behavioral categories through
// an explicit, versioned table. The mapping is configuration, never
// inference, so behavioral-shift claims stay reproducible.
package categories

import (
	"sort"
	"strings"
)

// DefaultVersion identifies the built-in table.
const DefaultVersion = "builtin-2024.1"

type prefixRule struct {
	prefix   string
	category string
}

// Table resolves action names to category names. Exact entries win over
// prefix entries; among prefixes the longest match wins, ties broken by
// category name.
type Table struct {
	Version  string
	exact    map[string]string
	prefixes []prefixRule
	names    []string
}

// New builds a table from config entries. Patterns ending in '*' are
// prefix rules; everything else matches exactly. Empty input yields the
// built-in default table.
func New(version string, entries map[string][]string) Table {
	if len(entries) == 0 {
		return Default()
	}
	if version == "" {
		version = "custom"
	}

	t := Table{
		Version: version,
		exact:   make(map[string]string, 32),
	}
	nameSet := make(map[string]struct{}, len(entries))
	for category, patterns := range entries {
		nameSet[category] = struct{}{}
		for _, pattern := range patterns {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			if strings.HasSuffix(pattern, "*") {
				t.prefixes = append(t.prefixes, prefixRule{
					prefix:   strings.TrimSuffix(pattern, "*"),
					category: category,
				})
				continue
			}
			t.exact[pattern] = category
		}
	}

	sort.Slice(t.prefixes, func(i, j int) bool {
		if len(t.prefixes[i].prefix) != len(t.prefixes[j].prefix) {
			return len(t.prefixes[i].prefix) > len(t.prefixes[j].prefix)
		}
		if t.prefixes[i].category != t.prefixes[j].category {
			return t.prefixes[i].category < t.prefixes[j].category
		}
		return t.prefixes[i].prefix < t.prefixes[j].prefix
	})

	t.names = make([]string, 0, len(nameSet))
	for name := range nameSet {
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t
}

// Default returns the built-in table calibrated for CloudTrail action names.
func Default() Table {
	t := New(DefaultVersion, map[string][]string{
		"reconnaissance": {
			"Describe*", "List*", "Get*", "Head*", "LookupEvents",
		},
		"escalation": {
			"AssumeRole", "GetSessionToken", "GetFederationToken",
			"AttachUserPolicy", "PutUserPolicy",
			"AttachRolePolicy", "PutRolePolicy",
			"CreateAccessKey", "CreateLoginProfile",
		},
		"exploitation": {
			"RunInstances", "TerminateInstances", "CreateKeyPair",
			"CreateSecurityGroup", "AuthorizeSecurityGroupIngress",
			"PutObject", "DeleteObject", "Invoke", "CreateUser",
		},
	})
	t.Version = DefaultVersion
	return t
}

// Category resolves an action name. The second return is false when no
// rule matches.
func (t Table) Category(action string) (string, bool) {
	if category, ok := t.exact[action]; ok {
		return category, true
	}
	for _, rule := range t.prefixes {
		if strings.HasPrefix(action, rule.prefix) {
			return rule.category, true
		}
	}
	return "", false
}

// Names returns the sorted category names of the table.
func (t Table) Names() []string {
	return t.names
}

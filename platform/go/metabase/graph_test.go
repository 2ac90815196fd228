package metabase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantLeavesReceiverUntouched(t *testing.T) {
	original := PermissionGraph{
		Revision: 3,
		Groups: map[string]map[string]PermissionLevel{
			"1": {"100": PermissionRead},
		},
	}

	next := original.Grant(20, 10, PermissionWrite)

	require.Equal(t, PermissionWrite, next.Groups["20"]["10"])
	require.Equal(t, PermissionRead, next.Groups["1"]["100"], "unrelated grants survive the merge")
	require.Equal(t, 3, next.Revision)

	_, mutated := original.Groups["20"]
	require.False(t, mutated, "Grant must return a copy, not mutate in place")
}

func TestGrantOverwritesExistingLevel(t *testing.T) {
	g := PermissionGraph{
		Groups: map[string]map[string]PermissionLevel{
			"20": {"10": PermissionRead},
		},
	}

	next := g.Grant(20, 10, PermissionWrite)
	require.Equal(t, PermissionWrite, next.Groups["20"]["10"])
	require.Equal(t, PermissionRead, g.Groups["20"]["10"])
}

func TestGrantUnrestrictedPreservesForeignEntries(t *testing.T) {
	foreign := json.RawMessage(`{"data":{"schemas":"none"}}`)
	g := DataPermissionGraph{
		Revision: 7,
		Groups: map[string]map[string]json.RawMessage{
			"1": {"3": foreign},
		},
	}

	next := g.GrantUnrestricted(20, 3)

	require.JSONEq(t, `{"data":{"schemas":"all","native":"write"}}`, string(next.Groups["20"]["3"]))
	require.Equal(t, foreign, next.Groups["1"]["3"], "other groups' grants must round-trip untouched")

	_, mutated := g.Groups["20"]
	require.False(t, mutated)
}

// Package executor runs an ExecutionDAG's FetchNodes: Kahn's-algorithm
// leveling groups nodes into waves, then each wave fans out in parallel with
// a hard barrier before the next wave starts.
package executor

import (
	"fmt"
	"sort"

	"github.com/omnisql/gateway/pkg/gatewayerr"
	"github.com/omnisql/gateway/pkg/omnitypes"
)

// Levels groups a DAG's nodes into execution waves via Kahn's BFS
// topological sort: each wave holds every node whose dependencies are all
// satisfied by earlier waves. Nodes within a wave have no ordering
// constraint between them.
func Levels(nodes []*omnitypes.FetchNode) ([][]*omnitypes.FetchNode, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	byID := make(map[string]*omnitypes.FetchNode, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		inDegree[n.ID] = len(n.DependsOn)
	}

	remaining := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		remaining[n.ID] = struct{}{}
	}

	var levels [][]*omnitypes.FetchNode
	for len(remaining) > 0 {
		var waveIDs []string
		for id := range remaining {
			if inDegree[id] == 0 {
				waveIDs = append(waveIDs, id)
			}
		}
		if len(waveIDs) == 0 {
			remainingIDs := make([]string, 0, len(remaining))
			for id := range remaining {
				remainingIDs = append(remainingIDs, id)
			}
			sort.Strings(remainingIDs)
			return nil, gatewayerr.New(gatewayerr.DAGCycle,
				fmt.Sprintf("execution DAG has a cycle among nodes: %v", remainingIDs))
		}
		sort.Strings(waveIDs)

		wave := make([]*omnitypes.FetchNode, 0, len(waveIDs))
		for _, id := range waveIDs {
			wave = append(wave, byID[id])
		}
		levels = append(levels, wave)

		for _, id := range waveIDs {
			delete(remaining, id)
		}
		for candidateID := range remaining {
			for _, dep := range byID[candidateID].DependsOn {
				if _, justFinished := indexOf(waveIDs, dep); justFinished {
					inDegree[candidateID]--
				}
			}
		}
	}

	return levels, nil
}

func indexOf(haystack []string, needle string) (int, bool) {
	for i, s := range haystack {
		if s == needle {
			return i, true
		}
	}
	return -1, false
}

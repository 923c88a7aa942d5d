package process

import (
	"sort"

	"github.com/iamgilwell/procguard/internal/monitor"
)

// DependencyTree maps parent PIDs to their children at one point in time.
type DependencyTree struct {
	children map[int][]int
	parents  map[int]int
	nodes    map[int]Identity
}

// BuildDependencyTree creates a process dependency tree.
func BuildDependencyTree(procs []Identity) *DependencyTree {
	dt := &DependencyTree{
		children: make(map[int][]int),
		parents:  make(map[int]int),
		nodes:    make(map[int]Identity, len(procs)),
	}
	for _, p := range procs {
		dt.nodes[p.PID] = p
		if p.ParentPID == p.PID {
			continue
		}
		dt.parents[p.PID] = p.ParentPID
		dt.children[p.ParentPID] = append(dt.children[p.ParentPID], p.PID)
	}
	for _, kids := range dt.children {
		sort.Ints(kids)
	}
	return dt
}

// TreeFromSnapshot builds a tree from a collected snapshot.
func TreeFromSnapshot(snap *monitor.Snapshot) *DependencyTree {
	if snap == nil {
		return BuildDependencyTree(nil)
	}
	ids := make([]Identity, 0, snap.Len())
	for _, r := range snap.Processes {
		ids = append(ids, Identity{
			PID:        r.PID,
			ParentPID:  r.ParentPID,
			Name:       r.Name,
			ExePath:    r.ExePath,
			CreateTime: r.StartTime,
		})
	}
	return BuildDependencyTree(ids)
}

// Node returns the identity recorded for pid.
func (dt *DependencyTree) Node(pid int) (Identity, bool) {
	id, ok := dt.nodes[pid]
	return id, ok
}

// ChildrenOf returns all direct children of a PID.
func (dt *DependencyTree) ChildrenOf(pid int) []int {
	return dt.children[pid]
}

// AllDescendants returns all descendants of a PID, breadth first.
func (dt *DependencyTree) AllDescendants(pid int) []int {
	var result []int
	queue := append([]int(nil), dt.children[pid]...)
	visited := map[int]bool{pid: true}

	for len(queue) > 0 {
		child := queue[0]
		queue = queue[1:]
		if visited[child] {
			continue
		}
		visited[child] = true
		result = append(result, child)
		queue = append(queue, dt.children[child]...)
	}
	return result
}

// SafeTerminationOrder returns PIDs in order for safe termination
// (deepest children first, the root last).
func (dt *DependencyTree) SafeTerminationOrder(pid int) []int {
	descendants := dt.AllDescendants(pid)
	result := make([]int, len(descendants)+1)
	for i, d := range descendants {
		result[len(descendants)-1-i] = d
	}
	result[len(descendants)] = pid
	return result
}

// ParentOf returns the parent PID.
func (dt *DependencyTree) ParentOf(pid int) int {
	return dt.parents[pid]
}

// WouldOrphan returns PIDs that would become orphaned if pid is terminated.
func (dt *DependencyTree) WouldOrphan(pid int) []int {
	return dt.children[pid]
}

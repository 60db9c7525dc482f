package meta

// dependencyNode wraps metadata for one reordering pass.
type dependencyNode struct {
	meta      *ClassMetaData
	dependsOn []*dependencyNode
}

func (n *dependencyNode) addDependency(target *dependencyNode) {
	for _, d := range n.dependsOn {
		if d == target {
			return
		}
	}
	n.dependsOn = append(n.dependsOn, target)
}

// OrderByIdentityDependencies moves every type whose primary key references
// another type of the list to just after the latest such dependency. Only
// targets present in list count, and a type's reference to itself is
// ignored. Each dependent is moved at most once, in input order, so chains
// longer than one hop are not guaranteed to end up fully ordered.
//
// When the dependencies contain a cycle the input is returned unchanged
// together with the cycle path.
func OrderByIdentityDependencies(list []*ClassMetaData) ([]*ClassMetaData, []*ClassMetaData) {
	nodes := make([]*dependencyNode, len(list))
	byMeta := make(map[*ClassMetaData]*dependencyNode, len(list))
	for i, m := range list {
		nodes[i] = &dependencyNode{meta: m}
		byMeta[m] = nodes[i]
	}

	var dependents []*dependencyNode
	for _, node := range nodes {
		for _, f := range node.meta.Fields() {
			if !f.primaryKey || f.typeMeta == nil || f.typeMeta == node.meta {
				continue
			}
			target, ok := byMeta[f.typeMeta]
			if !ok {
				continue
			}
			if len(node.dependsOn) == 0 {
				dependents = append(dependents, node)
			}
			node.addDependency(target)
		}
	}
	if len(dependents) == 0 {
		return list, nil
	}

	for _, node := range dependents {
		if cycle := findCycle(node, nil); cycle != nil {
			metas := make([]*ClassMetaData, len(cycle))
			for i, n := range cycle {
				metas[i] = n.meta
			}
			return list, metas
		}
	}

	sorted := make([]*ClassMetaData, len(list))
	copy(sorted, list)
	for _, node := range dependents {
		at := indexOf(sorted, node.meta)
		latest := at
		for _, dep := range node.dependsOn {
			if i := indexOf(sorted, dep.meta); i > latest {
				latest = i
			}
		}
		if latest == at {
			continue
		}
		copy(sorted[at:latest], sorted[at+1:latest+1])
		sorted[latest] = node.meta
	}
	return sorted, nil
}

// findCycle walks dependencies depth first, keeping the current path on a
// stack. It returns the path closing the first cycle found.
func findCycle(node *dependencyNode, stack []*dependencyNode) []*dependencyNode {
	for i, n := range stack {
		if n == node {
			cycle := append([]*dependencyNode{}, stack[i:]...)
			return append(cycle, node)
		}
	}
	stack = append(stack, node)
	for _, dep := range node.dependsOn {
		if cycle := findCycle(dep, stack); cycle != nil {
			return cycle
		}
	}
	return nil
}

func indexOf(list []*ClassMetaData, meta *ClassMetaData) int {
	for i, m := range list {
		if m == meta {
			return i
		}
	}
	return -1
}

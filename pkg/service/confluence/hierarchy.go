package confluence

import "slices"

// BuildPageHierarchy links pages into a forest. A page whose parent is not in pages becomes a root.
// Roots and children keep the order of the input list. Repeated IDs keep their first occurrence.
// Pages caught in a parent cycle are cut loose at the first of them in input order, which becomes
// a root, so every page is reachable from the returned roots.
func BuildPageHierarchy(pages []*Page) []*PageNode {
	nodes := make(map[string]*PageNode, len(pages))
	unique := make([]*Page, 0, len(pages))
	for _, p := range pages {
		if _, dup := nodes[p.ID]; dup {
			continue
		}
		nodes[p.ID] = &PageNode{Page: p}
		unique = append(unique, p)
	}

	var roots []*PageNode
	for _, p := range unique {
		node := nodes[p.ID]
		if parent, ok := nodes[p.ParentID]; ok && p.ParentID != "" && parent != node {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	reached := make(map[*PageNode]bool, len(unique))
	var mark func(node *PageNode)
	mark = func(node *PageNode) {
		if reached[node] {
			return
		}
		reached[node] = true
		for _, child := range node.Children {
			mark(child)
		}
	}
	for _, root := range roots {
		mark(root)
	}

	for _, p := range unique {
		node := nodes[p.ID]
		if reached[node] {
			continue
		}
		parent := nodes[p.ParentID]
		parent.Children = slices.DeleteFunc(parent.Children, func(c *PageNode) bool { return c == node })
		roots = append(roots, node)
		mark(node)
	}

	return roots
}

// Walk visits node and its descendants depth first, passing the ID of the enclosing node as parentID.
// Returning false from fn skips the subtree.
func Walk(roots []*PageNode, fn func(node *PageNode, parentID *string) bool) {
	var visit func(node *PageNode, parentID *string)
	visit = func(node *PageNode, parentID *string) {
		if !fn(node, parentID) {
			return
		}
		id := node.Page.ID
		for _, child := range node.Children {
			visit(child, &id)
		}
	}

	for _, root := range roots {
		var parentID *string
		if root.Page.ParentID != "" {
			pid := root.Page.ParentID
			parentID = &pid
		}
		visit(root, parentID)
	}
}

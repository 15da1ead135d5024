// Package thread rebuilds nested reply trees from flat comment batches.
//
// A batch is every comment of one subject (an easter egg). Parent references
// may come from the parent column, from a legacy side-channel field set by
// optimistic client updates, or from a "[REPLY_TO:<id>]" prefix embedded in
// the content of rows written before the parent column existed.
package thread

import (
	"regexp"
	"slices"
	"time"
)

var replyToMarker = regexp.MustCompile(`^\[REPLY_TO:([^\]]+)\]\s*`)

// Record is a comment as fetched from storage.
type Record struct {
	ID              string
	SubjectID       string
	AuthorID        string
	Username        string
	Content         string
	ParentCommentID *string
	// TempParentID is the legacy side-channel parent used by optimistic updates.
	TempParentID *string
	CreatedAt    time.Time

	// LikeCount is used when LikedBy is nil.
	LikeCount int
	LikedBy   []string
}

// Node is a Record placed in the tree.
type Node struct {
	Record

	// ParentID is the effective parent id, empty for comments that declared none.
	ParentID     string
	Depth        int
	UpvotesCount int
	UserLikes    bool
	Replies      []*Node
}

// Options controls per-viewer fields of the built nodes.
type Options struct {
	// ViewerID marks nodes whose LikedBy contains it.
	ViewerID string
	// ViewerLikes is the set of comment ids liked by the viewer.
	ViewerLikes map[string]bool
}

// ParseReplyMarker splits a leading "[REPLY_TO:<id>]" marker from content.
// ok is false when content carries no marker; body is then content unchanged.
func ParseReplyMarker(content string) (parentID, body string, ok bool) {
	m := replyToMarker.FindStringSubmatchIndex(content)
	if m == nil {
		return "", content, false
	}

	return content[m[2]:m[3]], content[m[1]:], true
}

// ReplyMarker returns the legacy content prefix pointing at parentID.
func ReplyMarker(parentID string) string {
	return "[REPLY_TO:" + parentID + "] "
}

// EffectiveParentID resolves the parent of rec: explicit column first, then the
// legacy side-channel, then the content marker. It also returns the content
// with any marker stripped.
func EffectiveParentID(rec Record) (parentID, content string) {
	markerParent, content, _ := ParseReplyMarker(rec.Content)

	switch {
	case rec.ParentCommentID != nil && *rec.ParentCommentID != "":
		return *rec.ParentCommentID, content
	case rec.TempParentID != nil && *rec.TempParentID != "":
		return *rec.TempParentID, content
	default:
		return markerParent, content
	}
}

// Build arranges records into reply trees and returns the roots in input order.
//
// A record whose effective parent is absent from the batch, or is the record
// itself, becomes a root. Records caught in a parent cycle are unreachable from
// any root after linking; the first of them in input order is detached and
// promoted to root so that every record appears exactly once. Promoted cycle
// members are appended after all ordinary roots, so they do not follow the
// order of the input.
func Build(records []Record, opts Options) []*Node {
	nodes := make([]*Node, 0, len(records))
	byID := make(map[string]*Node, len(records))

	for _, rec := range records {
		parentID, content := EffectiveParentID(rec)

		node := &Node{
			Record:       rec,
			ParentID:     parentID,
			UpvotesCount: upvotes(rec),
			UserLikes:    likedByViewer(rec, opts),
			Replies:      []*Node{},
		}
		node.Content = content

		nodes = append(nodes, node)

		if _, dup := byID[rec.ID]; !dup {
			byID[rec.ID] = node
		}
	}

	roots := make([]*Node, 0, len(nodes))
	parents := make(map[*Node]*Node, len(nodes))

	for _, node := range nodes {
		parent, found := byID[node.ParentID]
		if node.ParentID == "" || !found || parent == node {
			roots = append(roots, node)

			continue
		}

		parent.Replies = append(parent.Replies, node)
		parents[node] = parent
	}

	visited := make(map[*Node]bool, len(nodes))

	for _, root := range roots {
		assignDepth(root, visited)
	}

	for _, node := range nodes {
		if visited[node] {
			continue
		}

		if parent := parents[node]; parent != nil {
			parent.Replies = slices.DeleteFunc(parent.Replies, func(n *Node) bool { return n == node })
			delete(parents, node)
		}

		roots = append(roots, node)
		assignDepth(node, visited)
	}

	for _, node := range nodes {
		sortNewestFirst(node.Replies)
	}

	return roots
}

// assignDepth walks the subtree under root without recursion.
func assignDepth(root *Node, visited map[*Node]bool) {
	root.Depth = 0
	visited[root] = true

	stack := []*Node{root}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range node.Replies {
			if visited[child] {
				continue
			}

			visited[child] = true
			child.Depth = node.Depth + 1
			stack = append(stack, child)
		}
	}
}

func sortNewestFirst(replies []*Node) {
	slices.SortStableFunc(replies, func(a, b *Node) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

func upvotes(rec Record) int {
	if rec.LikedBy != nil {
		return len(rec.LikedBy)
	}

	return rec.LikeCount
}

func likedByViewer(rec Record, opts Options) bool {
	if opts.ViewerLikes[rec.ID] {
		return true
	}

	return opts.ViewerID != "" && slices.Contains(rec.LikedBy, opts.ViewerID)
}

// Walk calls fn for every node in depth-first display order.
func Walk(roots []*Node, fn func(*Node)) {
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(node)

		for i := len(node.Replies) - 1; i >= 0; i-- {
			stack = append(stack, node.Replies[i])
		}
	}
}

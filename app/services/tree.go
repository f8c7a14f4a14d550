package services

import "biostar/app/models"

// Tree maps a post ID to the comments made directly on it, in thread order.
type Tree map[int][]*models.Post

// BuildTree groups comments under their parents. Posts that are their own
// parent and non-comment posts are skipped.
func BuildTree(posts []*models.Post) Tree {
	tree := make(Tree)
	for _, post := range posts {
		if !post.IsComment() || post.ParentID == post.ID {
			continue
		}
		tree[post.ParentID] = append(tree[post.ParentID], post)
	}
	return tree
}

// Children returns the comments attached to id.
func (t Tree) Children(id int) []*models.Post {
	if t == nil {
		return nil
	}
	return t[id]
}

// Size is the total number of comments in the tree.
func (t Tree) Size() int {
	n := 0
	for _, children := range t {
		n += len(children)
	}
	return n
}

// Thread is everything the thread view needs: the top-level post, its
// answers in display order and the comment tree hanging off both.
type Thread struct {
	Post    *models.Post
	Answers []*models.Post
	Tree    Tree
	// Focus is the post the request named; it differs from Post when a
	// link pointed at an answer or comment.
	Focus *models.Post
}

package ml

import (
	"errors"
)

// TreeNode is one node of the serialized classification tree. Child
// fields hold absolute indexes into the node slice; leaves carry the
// predicted label and the probability of the positive class.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Proba      float64 `json:"proba"`
	IsLeaf     bool    `json:"is_leaf"`
}

// Tree is a pre-fitted binary classification tree. It is immutable
// after construction and safe for concurrent Predict calls.
type Tree struct {
	nodes []TreeNode
}

// NewTree builds a tree from serialized nodes.
func NewTree(nodes []TreeNode) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) ||
			node.RightChild <= i || node.RightChild >= len(nodes) {
			return nil, errors.New("tree child index out of range")
		}
	}
	return &Tree{nodes: nodes}, nil
}

// Predict returns the predicted class label for a feature row.
func (t *Tree) Predict(row []float64) (int, error) {
	leaf, err := t.walk(row)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

// PredictProba returns the probability of the positive class (label 1)
// for a feature row. The returned value always refers to class 1,
// never to whichever class was predicted.
func (t *Tree) PredictProba(row []float64) (float64, error) {
	leaf, err := t.walk(row)
	if err != nil {
		return 0, err
	}
	return leaf.Proba, nil
}

func (t *Tree) walk(row []float64) (TreeNode, error) {
	idx := 0
	for {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(row) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

package tree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

var (
	ErrParentNotFound = errors.New("parent not found")
	ErrLeafNotFound   = errors.New("leaf not found in vtxo tree")
)

// Node is a single transaction of a vtxo or connectors tree, alongside its
// position in the level-ordered forest.
type Node struct {
	Txid       string
	Tx         string // base64 psbt
	ParentTxid string
	Level      int
	LevelIndex int
	Leaf       bool
}

// TxTree is represented as a matrix of Node structs, the first level of the
// matrix being the root of the tree.
type TxTree [][]Node

// Validate checks that every node's declared txid matches its transaction
// and that every non-root node has a parent in the tree.
func (t TxTree) Validate() error {
	if len(t) == 0 || len(t[0]) == 0 {
		return errors.New("empty tree")
	}

	for _, level := range t {
		for _, node := range level {
			ptx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			if err != nil {
				return fmt.Errorf("invalid tx for node %s: %w", node.Txid, err)
			}

			if ptx.UnsignedTx.TxID() != node.Txid {
				return fmt.Errorf(
					"node %s has tx with txid %s", node.Txid, ptx.UnsignedTx.TxID(),
				)
			}
		}
	}

	for _, level := range t[1:] { // exclude the root level
		for _, node := range level {
			if _, err := t.Parent(node); err != nil {
				return fmt.Errorf("node %s: %w", node.Txid, err)
			}
		}
	}

	return nil
}

// Root returns the root node of the tree.
func (t TxTree) Root() (Node, error) {
	if len(t) == 0 || len(t[0]) == 0 {
		return Node{}, errors.New("empty tree")
	}

	return t[0][0], nil
}

// Leaves returns the leaf nodes of the tree.
func (t TxTree) Leaves() []Node {
	leaves := make([]Node, 0)
	for _, level := range t {
		for _, node := range level {
			if node.Leaf {
				leaves = append(leaves, node)
			}
		}
	}

	if len(leaves) == 0 && len(t) > 0 {
		leaves = append(leaves, t[len(t)-1]...)
	}

	return leaves
}

// Children returns all the nodes that have the given node as parent.
func (t TxTree) Children(nodeTxid string) []Node {
	var children []Node
	for _, level := range t {
		for _, node := range level {
			if node.ParentTxid == nodeTxid {
				children = append(children, node)
			}
		}
	}

	return children
}

// Parent returns the node whose txid is the given node's parent txid.
func (t TxTree) Parent(n Node) (Node, error) {
	for _, level := range t {
		for _, node := range level {
			if node.Txid == n.ParentTxid {
				return node, nil
			}
		}
	}
	return Node{}, ErrParentNotFound
}

// Find returns the node with the given txid.
func (t TxTree) Find(txid string) (Node, bool) {
	for _, level := range t {
		for _, node := range level {
			if node.Txid == txid {
				return node, true
			}
		}
	}
	return Node{}, false
}

// NumberOfNodes returns the total number of transactions in the tree.
func (t TxTree) NumberOfNodes() int {
	var count int
	for _, level := range t {
		count += len(level)
	}
	return count
}

// Branch returns the path from the root to the given leaf, in tree order.
func (t TxTree) Branch(leafTxid string) ([]Node, error) {
	branch := make([]Node, 0)

	found := false
	for _, leaf := range t.Leaves() {
		if leaf.Txid == leafTxid {
			found = true
			branch = append(branch, leaf)
			break
		}
	}
	if !found {
		return nil, ErrLeafNotFound
	}

	rootTxid := t[0][0].Txid

	for branch[0].Txid != rootTxid {
		parent, err := t.Parent(branch[0])
		if err != nil {
			return nil, err
		}
		branch = append([]Node{parent}, branch...)
	}

	return branch, nil
}

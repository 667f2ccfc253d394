package core

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Domain separation prefixes for leaf and interior node hashing.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// MerkleTree represents a SHA3-256 Merkle tree over a list of byte strings
type MerkleTree struct {
	root   []byte
	leaves [][]byte
	levels [][][]byte
}

// ProofNode represents a node in a Merkle proof
type ProofNode struct {
	Hash    []byte `json:"hash"`
	IsRight bool   `json:"is_right"` // sibling is the right child
}

// NewMerkleTree creates a new Merkle tree from the given data
func NewMerkleTree(data [][]byte) (*MerkleTree, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot create Merkle tree with empty data")
	}

	leaves := make([][]byte, len(data))
	for i, item := range data {
		leaves[i] = hashLeaf(item)
	}

	levels := [][][]byte{leaves}
	currentLevel := leaves

	for len(currentLevel) > 1 {
		nextLevel := make([][]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			right := currentLevel[i]
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}
			// Odd number of nodes: the last node is paired with itself
			nextLevel = append(nextLevel, hashNode(currentLevel[i], right))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		root:   currentLevel[0],
		leaves: leaves,
		levels: levels,
	}, nil
}

// Root returns a copy of the Merkle root
func (mt *MerkleTree) Root() []byte {
	return append([]byte(nil), mt.root...)
}

// Size returns the number of leaves
func (mt *MerkleTree) Size() int {
	return len(mt.leaves)
}

// Proof generates a Merkle proof for the given index
func (mt *MerkleTree) Proof(index int) ([]ProofNode, error) {
	if index < 0 || index >= len(mt.leaves) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", index, len(mt.leaves))
	}

	var proof []ProofNode
	currentIndex := index

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		siblingIndex := currentIndex - 1
		isRight := false
		if currentIndex%2 == 0 {
			siblingIndex = currentIndex + 1
			isRight = true
		}
		if siblingIndex >= len(currentLevel) {
			siblingIndex = currentIndex
		}

		proof = append(proof, ProofNode{
			Hash:    currentLevel[siblingIndex],
			IsRight: isRight,
		})
		currentIndex /= 2
	}

	return proof, nil
}

// VerifyProof verifies a Merkle proof for leaf against root
func VerifyProof(root []byte, leaf []byte, proof []ProofNode) bool {
	h := hashLeaf(leaf)
	for _, node := range proof {
		if node.IsRight {
			h = hashNode(h, node.Hash)
		} else {
			h = hashNode(node.Hash, h)
		}
	}
	return bytes.Equal(h, root)
}

// MerkleRoot computes the Merkle root of the given data (convenience function)
func MerkleRoot(data [][]byte) ([]byte, error) {
	tree, err := NewMerkleTree(data)
	if err != nil {
		return nil, err
	}
	return tree.Root(), nil
}

func hashLeaf(data []byte) []byte {
	h := sha3.New256()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	return h.Sum(nil)
}

func hashNode(left, right []byte) []byte {
	h := sha3.New256()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Package dag builds and reads Merkle DAGs of content-addressed blocks.
//
// Input is split into chunks, and each chunk is stored as a raw leaf block
// under its sha2-256 CID. A single DAG-CBOR root node links to every leaf in
// input order. Identical input always yields the same root CID.
package dag

import (
	"errors"

	"github.com/ipfs/go-cid"
)

var (
	ErrBlockNotFound  = errors.New("dag: block not found")
	ErrDigestMismatch = errors.New("dag: digest mismatch")
)

// Link references a child block.
type Link struct {
	Cid  cid.Cid
	Name *string
	Size *uint64
}

// NewLink returns a link with no name or size.
func NewLink(c cid.Cid) Link {
	return Link{Cid: c}
}

// Node is a DAG descriptor: optional inline data and ordered links.
type Node struct {
	Data  []byte `cbor:"data,omitempty"`
	Links []Link `cbor:"links"`
}

// Info describes a built DAG.
type Info struct {
	Root     cid.Cid
	Leaves   int
	RootSize int
}

package dag

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// cidTag is the CBOR tag that marks an embedded CID in DAG-CBOR.
const cidTag = 42

var (
	leafPrefix = cid.Prefix{Version: 1, Codec: cid.Raw, MhType: mh.SHA2_256, MhLength: -1}
	nodePrefix = cid.Prefix{Version: 1, Codec: cid.DagCBOR, MhType: mh.SHA2_256, MhLength: -1}
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), which yields
// the same key order as DAG-CBOR for text keys. Nil slices encode as empty
// arrays so an empty node still carries a links field.
var encMode cbor.EncMode

// decMode ignores unknown fields.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("dag: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("dag: CBOR decoder initialization failed: " + err.Error())
	}
}

// LeafCID returns the raw-codec sha2-256 CID of a chunk.
func LeafCID(data []byte) (cid.Cid, error) {
	return leafPrefix.Sum(data)
}

// NodeCID returns the dag-cbor sha2-256 CID of an encoded node.
func NodeCID(encoded []byte) (cid.Cid, error) {
	return nodePrefix.Sum(encoded)
}

// EncodeNode serializes n as deterministic DAG-CBOR.
func EncodeNode(n *Node) ([]byte, error) {
	return encMode.Marshal(n)
}

// DecodeNode parses a DAG-CBOR node.
func DecodeNode(data []byte) (*Node, error) {
	var n Node
	if err := decMode.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &n, nil
}

type linkWire struct {
	Cid  cbor.Tag `cbor:"cid"`
	Name *string  `cbor:"name,omitempty"`
	Size *uint64  `cbor:"size,omitempty"`
}

// MarshalCBOR encodes the CID as tag 42 over a byte string with a leading
// zero byte, the DAG-CBOR link representation.
func (l Link) MarshalCBOR() ([]byte, error) {
	if !l.Cid.Defined() {
		return nil, fmt.Errorf("link has undefined cid")
	}
	return encMode.Marshal(linkWire{
		Cid:  cbor.Tag{Number: cidTag, Content: append([]byte{0}, l.Cid.Bytes()...)},
		Name: l.Name,
		Size: l.Size,
	})
}

func (l *Link) UnmarshalCBOR(data []byte) error {
	var w linkWire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Cid.Number != cidTag {
		return fmt.Errorf("link cid: unexpected tag %d", w.Cid.Number)
	}
	raw, ok := w.Cid.Content.([]byte)
	if !ok || len(raw) == 0 || raw[0] != 0 {
		return fmt.Errorf("link cid: malformed tag content")
	}
	c, err := cid.Cast(raw[1:])
	if err != nil {
		return fmt.Errorf("link cid: %w", err)
	}
	*l = Link{Cid: c, Name: w.Name, Size: w.Size}
	return nil
}

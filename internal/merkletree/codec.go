package merkletree

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
)

// EncodeNode serializes a node as index(8 LE) || node_type(1) || hash(32) ||
// payload(64), where payload is data(32) || zero(32) for a leaf and
// left(32) || right(32) for a non-leaf.
func EncodeNode(n *Node) []byte {
	buf := make([]byte, 8+1+32+64)
	binary.LittleEndian.PutUint64(buf[0:8], n.Index)
	buf[8] = byte(n.Type)
	copy(buf[9:41], n.Hash[:])
	switch n.Type {
	case NodeTypeLeaf:
		copy(buf[41:73], n.Data[:])
	case NodeTypeNonLeaf:
		copy(buf[41:73], n.Left[:])
		copy(buf[73:105], n.Right[:])
	}
	return buf
}

// DecodeNode parses the fixed layout EncodeNode produces.
func DecodeNode(b []byte) (*Node, error) {
	if len(b) != 8+1+32+64 {
		return nil, apierr.New(apierr.Internal, "node encoding has wrong length")
	}
	index := binary.LittleEndian.Uint64(b[0:8])
	nodeType, err := nodeTypeFromByte(b[8])
	if err != nil {
		return nil, err
	}
	n := &Node{Index: index, Type: nodeType}
	copy(n.Hash[:], b[9:41])
	switch nodeType {
	case NodeTypeLeaf:
		copy(n.Data[:], b[41:73])
	case NodeTypeNonLeaf:
		copy(n.Left[:], b[41:73])
		copy(n.Right[:], b[73:105])
	}
	return n, nil
}

func nodeTypeFromByte(b byte) (NodeType, error) {
	switch NodeType(b) {
	case NodeTypeLeaf:
		return NodeTypeLeaf, nil
	case NodeTypeNonLeaf:
		return NodeTypeNonLeaf, nil
	default:
		return 0, apierr.New(apierr.InvalidEnum, "unknown node_type byte")
	}
}

// EncodeProof serializes a sibling list as count(8 LE) followed by count
// entries of len(8 LE) || hash(32); len is always 32.
func EncodeProof(siblings []Hash) []byte {
	buf := make([]byte, 8+len(siblings)*(8+32))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(siblings)))
	off := 8
	for _, s := range siblings {
		binary.LittleEndian.PutUint64(buf[off:off+8], 32)
		copy(buf[off+8:off+40], s[:])
		off += 40
	}
	return buf
}

// DecodeProof parses the layout EncodeProof produces.
func DecodeProof(b []byte) ([]Hash, error) {
	if len(b) < 8 {
		return nil, apierr.New(apierr.Internal, "proof encoding too short")
	}
	count := binary.LittleEndian.Uint64(b[0:8])
	want := 8 + int(count)*(8+32)
	if len(b) != want {
		return nil, apierr.New(apierr.Internal, "proof encoding has wrong length")
	}
	siblings := make([]Hash, count)
	off := 8
	for i := range siblings {
		l := binary.LittleEndian.Uint64(b[off : off+8])
		if l != 32 {
			return nil, apierr.New(apierr.Internal, "proof sibling length must be 32")
		}
		copy(siblings[i][:], b[off+8:off+40])
		off += 40
	}
	return siblings, nil
}

// ProofType selects whether a get/set operation returns a sibling path.
type ProofType uint8

const (
	ProofNone ProofType = 0
	ProofV0   ProofType = 1
)

func (t ProofType) String() string {
	switch t {
	case ProofNone:
		return "ProofNone"
	case ProofV0:
		return "ProofV0"
	default:
		return "Unknown"
	}
}

// ParseProofType parses the codec's symbolic proof-type name.
func ParseProofType(s string) (ProofType, error) {
	switch s {
	case "ProofNone":
		return ProofNone, nil
	case "ProofV0":
		return ProofV0, nil
	default:
		return 0, apierr.New(apierr.InvalidEnum, "unknown proof_type: "+s)
	}
}

// NodeResponse is the REST transport's base64-framed, enum-by-name DTO for a
// Node, mirroring the ToResponse() convention this codebase uses for
// proof-bearing responses.
type NodeResponse struct {
	Index    uint64 `json:"index"`
	NodeType string `json:"node_type"`
	Hash     string `json:"hash"`
	Data     string `json:"data,omitempty"`
	Left     string `json:"left,omitempty"`
	Right    string `json:"right,omitempty"`
}

// ToResponse converts a Node to its external, base64-framed representation.
func (n *Node) ToResponse() NodeResponse {
	resp := NodeResponse{
		Index:    n.Index,
		NodeType: n.Type.String(),
		Hash:     base64.StdEncoding.EncodeToString(n.Hash[:]),
	}
	switch n.Type {
	case NodeTypeLeaf:
		resp.Data = base64.StdEncoding.EncodeToString(n.Data[:])
	case NodeTypeNonLeaf:
		resp.Left = base64.StdEncoding.EncodeToString(n.Left[:])
		resp.Right = base64.StdEncoding.EncodeToString(n.Right[:])
	}
	return resp
}

// ProofResponse is the REST transport's DTO for a sibling path.
type ProofResponse struct {
	ProofType string   `json:"proof_type"`
	Siblings  []string `json:"siblings,omitempty"`
}

// ProofToResponse converts a sibling list to its external representation.
// An empty/nil list encodes as ProofNone.
func ProofToResponse(siblings []Hash) ProofResponse {
	if len(siblings) == 0 {
		return ProofResponse{ProofType: ProofNone.String()}
	}
	out := make([]string, len(siblings))
	for i, s := range siblings {
		out[i] = base64.StdEncoding.EncodeToString(s[:])
	}
	return ProofResponse{ProofType: ProofV0.String(), Siblings: out}
}

// DecodeHashB64 decodes a base64 hash field from the REST surface into a
// Hash, failing with FieldOutOfRange-adjacent validation deferred to the
// caller (the raw 32-byte shape is checked here; field-range validity is
// checked by whoever parses it into a field element).
func DecodeHashB64(s string) (Hash, error) {
	var h Hash
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return h, apierr.Wrap(apierr.Internal, "hash is not valid base64", err)
	}
	if len(raw) != 32 {
		return h, apierr.New(apierr.Internal, "hash must be exactly 32 bytes")
	}
	copy(h[:], raw)
	return h, nil
}

// EncodeHashB64 encodes a Hash for the REST surface.
func EncodeHashB64(h Hash) string {
	return base64.StdEncoding.EncodeToString(h[:])
}

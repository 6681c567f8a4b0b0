package letsconfide

import (
	"encoding/base64"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wbibile/LetsConfide/sizedbytes"
)

// chunkSize is the byte-array chunk size used when a sealed field is
// rendered as a YAML sequence of Base64 strings (§4.I).
const chunkSize = 32

// EncryptedBlob is the persisted form of a sealed secrets file (§3).
type EncryptedBlob struct {
	Seed         []byte   // exactly 64 bytes
	EncryptedKey []byte   // device-wrapped persistent DEK
	CipherData   []byte   // AES-GCM ciphertext of the serialized key/value list
	DeviceTokens [][]byte // ordered {private, public} storage-key blobs
}

// encryptedDataFieldOrder lists encryptedData's four required fields in the
// order parseEncryptedData checks and decodes them. The on-disk order is
// set separately by encryptedDataNode.
var encryptedDataFieldOrder = []string{"seed", "encryptedKey", "cipherData", "deviceTokens"}

func parseEncryptedData(n *yaml.Node) (*EncryptedBlob, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]*yaml.Node, len(pairs))
	for _, p := range pairs {
		fields[p.key.Value] = p.value
	}

	blob := &EncryptedBlob{}
	for _, name := range encryptedDataFieldOrder {
		fn, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotDefined, name)
		}
		b, err := decodeChunkSequence(fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		switch name {
		case "seed":
			if len(b) != 64 {
				return nil, fmt.Errorf("%w", ErrInvalidSeedSize)
			}
			blob.Seed = b
		case "encryptedKey":
			blob.EncryptedKey = b
		case "cipherData":
			blob.CipherData = b
		case "deviceTokens":
			tokens, err := sizedbytes.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("deviceTokens: %w", err)
			}
			blob.DeviceTokens = tokens
		}
	}
	return blob, nil
}

func decodeChunkSequence(n *yaml.Node) ([]byte, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w at line %d", ErrUnexpectedEntry, n.Line)
	}
	var out []byte
	for _, c := range n.Content {
		chunk, err := base64.StdEncoding.DecodeString(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 chunk at line %d: %w", c.Line, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func encodeChunkSequence(b []byte) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if len(b) == 0 {
		return seq
	}
	for i := 0; i < len(b); i += chunkSize {
		end := i + chunkSize
		if end > len(b) {
			end = len(b)
		}
		seq.Content = append(seq.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: base64.StdEncoding.EncodeToString(b[i:end]),
		})
	}
	return seq
}

// marshalSealed renders headers and blob as the sealed-file YAML document
// (§4.I): a top-level "headers" mapping of 5 scalars and an
// "encryptedData" mapping of 4 base64-chunk-sequence fields.
func marshalSealed(headers ConfigHeaders, blob *EncryptedBlob) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	root.Content = append(root.Content,
		strNode("headers"), headersNode(headers),
		strNode("encryptedData"), encryptedDataNode(blob),
	)

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func headersNode(h ConfigHeaders) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	n.Content = append(n.Content,
		strNode("primaryKeyType"), strNode(h.PrimaryKeyType.String()),
		strNode("storageKeyType"), strNode(h.StorageKeyType.String()),
		strNode("ephemeralKeyType"), strNode(h.EphemeralKeyType.String()),
		strNode("pcrSelection"), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%X", h.PCRSelection)},
		strNode("pcrHash"), strNode(h.PCRHash.String()),
	)
	return n
}

func encryptedDataNode(blob *EncryptedBlob) *yaml.Node {
	tokens, err := sizedbytes.Encode(blob.DeviceTokens...)
	if err != nil {
		// deviceTokens are TPM blobs well under MaxPartSize; this only
		// fires if the TPM returned an implausibly large blob.
		tokens = nil
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	n.Content = append(n.Content,
		strNode("seed"), encodeChunkSequence(blob.Seed),
		strNode("encryptedKey"), encodeChunkSequence(blob.EncryptedKey),
		strNode("cipherData"), encodeChunkSequence(blob.CipherData),
		strNode("deviceTokens"), encodeChunkSequence(tokens),
	)
	return n
}

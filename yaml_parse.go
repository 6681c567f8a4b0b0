package letsconfide

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/wbibile/LetsConfide/tpm"
)

// configEntry is one (name, value) pair from the input YAML's data
// mapping, in source order.
type configEntry struct {
	Name  string
	Value string
}

// parsedConfig is the result of walking either a plaintext or sealed input
// document.
type parsedConfig struct {
	headers ConfigHeaders
	entries []configEntry // non-nil for a plaintext document
	blob    *EncryptedBlob // non-nil for a sealed document
}

// parseConfigDocument walks raw YAML bytes directly as a yaml.Node tree
// (rather than unmarshaling into a struct) so that duplicate keys, unknown
// header keys, and non-mapping entries can be reported with 1-based line
// numbers, and so that alias nodes can be rejected outright — none of
// which plain yaml.Unmarshal exposes.
func parseConfigDocument(raw []byte) (*parsedConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("Error parsing YAML file: %w", err)
	}
	if len(doc.Content) == 0 {
		return &parsedConfig{headers: DefaultConfigHeaders()}, nil
	}
	root := doc.Content[0]
	if err := rejectAliases(root); err != nil {
		return nil, fmt.Errorf("Error parsing YAML file: %w", err)
	}

	top, err := mappingPairs(root)
	if err != nil {
		return nil, fmt.Errorf("Error parsing YAML file: %w", err)
	}

	pc := &parsedConfig{headers: DefaultConfigHeaders()}
	var dataNode, encDataNode *yaml.Node
	for _, p := range top {
		switch p.key.Value {
		case "headers":
			h, err := parseHeaders(p.value)
			if err != nil {
				return nil, fmt.Errorf("Error parsing YAML file: %w", err)
			}
			pc.headers = h
		case "data":
			dataNode = p.value
		case "encryptedData":
			encDataNode = p.value
		}
	}

	switch {
	case encDataNode != nil:
		blob, err := parseEncryptedData(encDataNode)
		if err != nil {
			return nil, fmt.Errorf("Error parsing YAML file: %w", err)
		}
		pc.blob = blob
	case dataNode != nil:
		entries, err := parseData(dataNode)
		if err != nil {
			return nil, fmt.Errorf("Error parsing YAML file: %w", err)
		}
		pc.entries = entries
	default:
		return nil, fmt.Errorf("Error parsing YAML file: %w", ErrMissingDataSection)
	}
	return pc, nil
}

type nodePair struct {
	key   *yaml.Node
	value *yaml.Node
}

// mappingPairs returns n's key/value pairs in source order, rejecting
// duplicate keys and non-mapping nodes.
func mappingPairs(n *yaml.Node) ([]nodePair, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w at line %d", ErrUnexpectedEntry, n.Line)
	}
	seen := make(map[string]bool, len(n.Content)/2)
	pairs := make([]nodePair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if seen[k.Value] {
			return nil, fmt.Errorf("%w at line %d", ErrDuplicateKey, k.Line)
		}
		seen[k.Value] = true
		pairs = append(pairs, nodePair{key: k, value: v})
	}
	return pairs, nil
}

// rejectAliases walks the full tree looking for any YAML alias node.
func rejectAliases(n *yaml.Node) error {
	if n.Kind == yaml.AliasNode {
		return ErrAliasNotAllowed
	}
	for _, c := range n.Content {
		if err := rejectAliases(c); err != nil {
			return err
		}
	}
	return nil
}

func parseHeaders(n *yaml.Node) (ConfigHeaders, error) {
	h := DefaultConfigHeaders()
	pairs, err := mappingPairs(n)
	if err != nil {
		return ConfigHeaders{}, err
	}
	for _, p := range pairs {
		switch p.key.Value {
		case "primaryKeyType":
			kt, err := parseKeyType(p.value)
			if err != nil {
				return ConfigHeaders{}, err
			}
			h.PrimaryKeyType = kt
		case "storageKeyType":
			kt, err := parseKeyType(p.value)
			if err != nil {
				return ConfigHeaders{}, err
			}
			h.StorageKeyType = kt
		case "ephemeralKeyType":
			kt, err := parseKeyType(p.value)
			if err != nil {
				return ConfigHeaders{}, err
			}
			h.EphemeralKeyType = kt
		case "pcrSelection":
			v, err := strconv.ParseUint(p.value.Value, 0, 32)
			if err != nil {
				return ConfigHeaders{}, fmt.Errorf("%w at line %d", ErrInvalidHeader, p.key.Line)
			}
			h.PCRSelection = uint32(v)
		case "pcrHash":
			switch p.value.Value {
			case "SHA1":
				h.PCRHash = tpm.SHA1
			case "SHA256":
				h.PCRHash = tpm.SHA256
			default:
				return ConfigHeaders{}, fmt.Errorf("%w at line %d", ErrInvalidHeader, p.key.Line)
			}
		default:
			return ConfigHeaders{}, fmt.Errorf("%w at line %d", ErrInvalidHeader, p.key.Line)
		}
	}
	return h, nil
}

func parseKeyType(n *yaml.Node) (tpm.KeyType, error) {
	switch n.Value {
	case "AES128":
		return tpm.AES128, nil
	case "AES256":
		return tpm.AES256, nil
	case "RSA1024":
		return tpm.RSA1024, nil
	case "RSA2048":
		return tpm.RSA2048, nil
	default:
		return 0, fmt.Errorf("%w at line %d", ErrInvalidHeader, n.Line)
	}
}

func parseData(n *yaml.Node) ([]configEntry, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	entries := make([]configEntry, 0, len(pairs))
	for _, p := range pairs {
		if p.value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w at line %d", ErrUnexpectedEntry, p.value.Line)
		}
		entries = append(entries, configEntry{Name: p.key.Value, Value: p.value.Value})
	}
	return entries, nil
}

package turns

import (
	"gopkg.in/yaml.v3"

	"github.com/pkg/errors"
)

// BlockKind serializes as its string form so snapshots stay readable and
// stable across reorderings of the enum.

func (k BlockKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

func (k *BlockKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "decode block kind")
	}
	*k = BlockKindFromString(s)
	return nil
}

// MarshalTurnYAML renders a Turn as YAML, used for snapshots and persistence.
func MarshalTurnYAML(t *Turn) ([]byte, error) {
	b, err := yaml.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshal turn")
	}
	return b, nil
}

// UnmarshalTurnYAML parses a Turn previously rendered by MarshalTurnYAML.
func UnmarshalTurnYAML(data []byte) (*Turn, error) {
	var t Turn
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "unmarshal turn")
	}
	return &t, nil
}

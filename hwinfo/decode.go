package hwinfo

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// FromConfigMap decodes one hardware component description out of a generic
// parsed tree, e.g. the output of a robot-description parser that was
// unmarshalled into maps. The decoder converts between compatible scalar
// types (e.g. the string "50" into a float, "true" into a bool) and ignores
// extra keys, matching how description formats grow.
func FromConfigMap(raw map[string]interface{}) (HardwareInfo, error) {
	var hi HardwareInfo
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &hi,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return HardwareInfo{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return HardwareInfo{}, errors.Wrap(err, "decoding hardware description")
	}
	if err := hi.Validate(); err != nil {
		return HardwareInfo{}, err
	}
	return hi, nil
}

// FromConfigMaps decodes a list of component descriptions, failing on the
// first invalid entry.
func FromConfigMaps(raw []map[string]interface{}) ([]HardwareInfo, error) {
	out := make([]HardwareInfo, 0, len(raw))
	for i, r := range raw {
		hi, err := FromConfigMap(r)
		if err != nil {
			return nil, errors.Wrapf(err, "hardware description %d", i)
		}
		out = append(out, hi)
	}
	return out, nil
}

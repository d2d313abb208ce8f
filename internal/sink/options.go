package sink

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a free-form options map from the config file into out.
// Numbers may arrive as strings or floats and durations as strings.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid sink options: %w", err)
	}
	return nil
}

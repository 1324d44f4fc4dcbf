package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/s2onet/internal/core"
)

// DecodeCapture builds a CaptureConfig from loosely typed input supplied by an
// embedding application. Missing keys keep their defaults; unknown keys are
// rejected.
func DecodeCapture(input map[string]any) (CaptureConfig, error) {
	cfg := DefaultCaptureConfig()
	if err := decodeStrict(input, &cfg); err != nil {
		return CaptureConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return CaptureConfig{}, err
	}
	return cfg, nil
}

// DecodeDriver builds a DriverConfig the same way.
func DecodeDriver(input map[string]any) (DriverConfig, error) {
	cfg := DefaultDriverConfig()
	if err := decodeStrict(input, &cfg); err != nil {
		return DriverConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return DriverConfig{}, err
	}
	return cfg, nil
}

func decodeStrict(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return nil
}

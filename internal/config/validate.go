package config

import (
	"errors"
	"fmt"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/types"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if _, err := types.ParseProfile(c.Profile); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.MaxArchiveBytes < 0 {
		return errors.New("max_archive_bytes must not be negative")
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if c.Decode.LLRScale < 0 {
		return errors.New("decode.llr_scale must not be negative")
	}
	if c.Decode.RepairErrors && !c.Decode.VerifyIntegrity {
		return errors.New("decode.repair_errors needs decode.verify_integrity")
	}
	switch c.Log.Format {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}
	return nil
}

func (c *Config) validateCompression() error {
	codec, err := compress.ParseCodec(c.Compression.Codec)
	if err != nil {
		return fmt.Errorf("compression.codec: %w", err)
	}
	if codec == compress.Zstd && (c.Compression.Level < 0 || c.Compression.Level > 22) {
		return fmt.Errorf("compression.level %d must be between 0 and 22 for zstd", c.Compression.Level)
	}
	if codec == compress.LZ4 && (c.Compression.Level < 0 || c.Compression.Level > 9) {
		return fmt.Errorf("compression.level %d must be between 0 and 9 for lz4", c.Compression.Level)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.UploadDir == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.UploadDir == c.Paths.OutputDir {
		return errors.New("paths.upload_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if !c.Conversion.JSONOutput && !c.Conversion.MarkdownOutput && !c.Conversion.DoctagsOutput {
		return errors.New("conversion: at least one export format must be enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

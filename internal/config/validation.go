package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags, then the rules that span several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Storage.Driver == "local" && cfg.Storage.LocalPath == "" {
		return errors.New("storage.local_path: required when driver is local")
	}
	if cfg.Storage.Driver == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket: required when driver is s3")
		}
		if (cfg.Storage.S3.AccessKey == "") != (cfg.Storage.S3.SecretKey == "") {
			return errors.New("storage.s3: access_key and secret_key must be set together")
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

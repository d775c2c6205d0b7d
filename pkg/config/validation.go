package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct-tag validation over cfg, returning a combined error
// describing every failing field. Cross-field checks that the validator
// tags can't express (e.g. reconnect bounds ordering, which is already
// covered by a gtfield tag on hub.Config) are not duplicated here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(verrs)
		}
		return err
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed validation %q", fe.Namespace(), fe.Tag()))
	}
	combined := msgs[0]
	for _, m := range msgs[1:] {
		combined += "; " + m
	}
	return fmt.Errorf("%s", combined)
}

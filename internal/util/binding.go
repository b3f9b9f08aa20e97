package util

import (
	"errors"
	"fmt"
	"gamehub_backend/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册 genre / platform / visibility 自定义校验标签
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	if err := v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return model.Genre(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return model.Platform(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		return model.Visibility(fl.Field().String()).Valid()
	})
}

// BindErrorMessage 将 validator 错误转为可读信息
func BindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		verr := verrs[0]
		switch verr.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", verr.Field())
		case "max":
			return fmt.Sprintf("%s must be at most %s", verr.Field(), verr.Param())
		case "min", "gte":
			return fmt.Sprintf("%s must be at least %s", verr.Field(), verr.Param())
		case "genre", "platform", "visibility", "oneof":
			return fmt.Sprintf("%s has an unsupported value", verr.Field())
		default:
			return fmt.Sprintf("%s is invalid", verr.Field())
		}
	}
	return err.Error()
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/pkg/validation"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := validation.RegisterRules(v); err != nil {
		panic(err)
	}
	return v
}

// BindAndValidate decodes the JSON body into obj and runs its struct tags.
// On failure it writes a 400 response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid request format")
		errorDetail = errorDetail.WithDetails(err.Error())
		RespondError(c, http.StatusBadRequest, errorDetail)
		return false
	}

	if err := validate.Struct(obj); err != nil {
		RespondError(c, http.StatusBadRequest, dto.HandleValidationError(err))
		return false
	}
	return true
}

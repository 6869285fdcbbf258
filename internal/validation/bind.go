package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_request_body",
			"message": err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_failed",
			"message": "request validation failed",
			"fields":  FieldErrors(err),
		})
		return err
	}
	return nil
}

// FieldErrors flattens validator errors into namespace -> failed rule.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

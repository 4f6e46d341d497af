package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationSummary heads every field level rejection
const ValidationSummary = "Data permintaan tidak valid"

// flagStatusNames spells out the Multibank flag codes accepted by oneof
var flagStatusNames = map[string]string{
	"88": "88 (ditahan)",
	"01": "01 (aktif)",
	"02": "02 (lunas)",
}

// RegisterFieldNames makes binding errors name fields the way clients send
// them: the json key for bodies, the form key for query filters.
func RegisterFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if key := tagKey(fld, "json"); key != "" {
			return key
		}
		return tagKey(fld, "form")
	})
}

func tagKey(fld reflect.StructField, tag string) string {
	key, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
	if key == "-" {
		return ""
	}
	return key
}

// ValidationResponse lists one detail per rejected field
func ValidationResponse(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details = make([]dto.ValidationDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: fieldMessage(fe),
			})
		}
	}
	return dto.NewValidationErrorResponse(ValidationSummary, requestID, details)
}

// HandleValidationError answers a failed bind. A body over the limit is 413,
// unparseable JSON is ERR_INVALID_JSON, anything else lists field errors.
func HandleValidationError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortTooLarge(c, tooLarge.Limit)
		return
	}

	requestID := getRequestID(c)
	if isMalformedJSON(err) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeInvalidJSON, "Body JSON tidak dapat dibaca", requestID))
		return
	}
	c.JSON(http.StatusBadRequest, ValidationResponse(err, requestID))
}

func isMalformedJSON(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// fieldMessage renders one rejected rule for API clients
func fieldMessage(fe validator.FieldError) string {
	param := fe.Param()
	text := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return "Wajib diisi"
	case "min":
		if text {
			return "Minimal " + param + " karakter"
		}
		if fe.Kind() == reflect.Slice {
			return "Minimal " + param + " data"
		}
		return "Minimal " + param
	case "max":
		if text {
			return "Maksimal " + param + " karakter"
		}
		if fe.Kind() == reflect.Slice {
			return "Maksimal " + param + " data"
		}
		return "Maksimal " + param
	case "len":
		return "Harus tepat " + param + " karakter"
	case "oneof":
		return "Harus salah satu dari: " + describeChoices(param)
	case "gt":
		return "Harus lebih besar dari " + param
	case "gte":
		return "Tidak boleh kurang dari " + param
	case "lt":
		return "Harus lebih kecil dari " + param
	case "lte":
		return "Tidak boleh lebih dari " + param
	case "numeric":
		return "Harus berupa angka"
	case "uuid":
		return "Harus berupa UUID"
	case "datetime":
		return "Format tanggal harus " + param
	}
	return "Nilai tidak valid"
}

// describeChoices names flag status codes so clients see what 88/01/02 mean
func describeChoices(param string) string {
	choices := strings.Fields(param)
	for i, c := range choices {
		if name, ok := flagStatusNames[c]; ok {
			choices[i] = name
		}
	}
	return strings.Join(choices, ", ")
}

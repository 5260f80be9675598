package api

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

var errTrailingData = errors.New("unexpected data after JSON body")

func writeError(c *gin.Context, status int, code string) {
	c.JSON(status, errorResponse{Error: code})
}

// decodeStrict decodes exactly one JSON document with no unknown fields.
func decodeStrict(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errTrailingData
	}
	return nil
}

package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ray-remotestate/restroclient/apperrors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Message is the server's own explanation of a failed response: the "error"
// field, then the "message" field, then a generic line with the status.
func (r *Response) Message() string {
	var body errorBody
	if err := json.Unmarshal(r.Body, &body); err == nil {
		if msg := strings.TrimSpace(body.Error); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("request failed with status %d", r.Status)
}

// Check maps a non-2xx response to an apperrors value. A 401 on a request
// that carried the credential is AuthExpired; on an anonymous request (login)
// it is an ordinary Server error carrying the server's text.
func Check(r *Response) error {
	if r.OK() {
		return nil
	}
	if r.Status == http.StatusUnauthorized && !r.Anonymous {
		return apperrors.AuthExpired(r.Message(), r.Status)
	}
	return apperrors.Server(r.Message(), r.Status)
}

// DecodeJSON checks r and decodes its body into v. A body that does not
// match v is a DataShape error naming what.
func DecodeJSON(r *Response, what string, v any) error {
	if err := Check(r); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apperrors.DataShape(what, err)
	}
	return nil
}

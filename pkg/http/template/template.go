package template

import (
	"bytes"
	"encoding/json"
)

const ContentTypeJSON = "application/json; charset=utf-8"

var messagePlaceholder = []byte("${message}")

var (
	unavailableTemplate = []byte(`{
	  "status": 503,
	  "error": "Service Unavailable",
	  "message": "${message}"
	}`)
	tooManyRequestsTemplate = []byte(`{
	  "status": 429,
	  "error": "Too Many Requests",
	  "message": "${message}"
	}`)
	internalErrorTemplate = []byte(`{
	  "status": 500,
	  "error": "Internal Server Error",
	  "message": "${message}"
	}`)
)

// Unavailable renders a 503 body carrying the error message.
func Unavailable(err error) []byte {
	return resolve(unavailableTemplate, err)
}

// TooManyRequests renders a 429 body carrying the error message.
func TooManyRequests(err error) []byte {
	return resolve(tooManyRequestsTemplate, err)
}

// InternalError renders a 500 body carrying the error message.
func InternalError(err error) []byte {
	return resolve(internalErrorTemplate, err)
}

// resolve substitutes ${message} with the json-escaped error message.
func resolve(tpl []byte, err error) []byte {
	escaped, _ := json.Marshal(err.Error())
	return bytes.ReplaceAll(tpl, messagePlaceholder, escaped[1:len(escaped)-1])
}

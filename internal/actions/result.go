package actions

import "encoding/json"

// Result is the payload an action returns. It always carries a boolean
// "success" key and usually a human-readable "message".
type Result map[string]interface{}

// OK builds a successful result from fields.
func OK(message string, fields map[string]interface{}) Result {
	r := Result{"success": true}
	if message != "" {
		r["message"] = message
	}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

// Fail builds a success:false result.
func Fail(message string) Result {
	return Result{"success": false, "message": message}
}

// Success reports the result's success flag.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Message returns the result's message, if any.
func (r Result) Message() string {
	m, _ := r["message"].(string)
	return m
}

// JSON encodes the result for the language model. Unencodable values
// degrade to a failure message.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"message":"result could not be encoded"}`
	}
	return string(data)
}

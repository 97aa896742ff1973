package backend

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"MediDesk/internal/schema"
)

// Envelope is the uniform response shape of the backend REST API. Payloads
// arrive in either result or data depending on the endpoint generation.
type Envelope struct {
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// Pagination accompanies list responses.
type Pagination struct {
	Page  int `json:"page,omitempty"`
	Pages int `json:"pages,omitempty"`
	Count int `json:"count,omitempty"`
	Total int `json:"total,omitempty"`
}

// Payload returns whichever of result/data the backend populated.
func (e *Envelope) Payload() json.RawMessage {
	if len(e.Result) > 0 {
		return e.Result
	}
	return e.Data
}

// BackendError is a backend response that reported failure, either via a
// non-2xx status or an explicit success:false envelope.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return e.Message
}

// ParseEnvelope decodes a backend response and validates the decoded body
// against sch (nil skips validation). A body that is not JSON is treated
// as a failed envelope rather than an error, so a misbehaving backend
// still surfaces as a uniform {success:false}. Failures carry
// error ?? message ?? "HTTP <status>".
func ParseEnvelope(resp *Response, sch *schema.Schema) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(resp.Body, env); err != nil {
		env = &Envelope{Success: false}
	}

	if !resp.OK() || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "HTTP " + strconv.Itoa(resp.StatusCode)
		}
		return nil, &BackendError{StatusCode: resp.StatusCode, Message: msg}
	}

	if sch != nil {
		var body any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, &BackendError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid response body: %v", err)}
		}
		if err := sch.Validate(body); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// ListQuery models the query parameters every backend list endpoint
// accepts. Filter is JSON-encoded on the wire.
type ListQuery struct {
	Items     int
	Page      int
	Depth     int
	Q         string
	Filter    map[string]any
	StartDate string
	EndDate   string
}

// Values encodes the list query as URL parameters, omitting zero values.
func (q ListQuery) Values() (url.Values, error) {
	values := url.Values{}
	if q.Items > 0 {
		values["items"] = []string{strconv.Itoa(q.Items)}
	}
	if q.Page > 0 {
		values["page"] = []string{strconv.Itoa(q.Page)}
	}
	if q.Depth > 0 {
		values["depth"] = []string{strconv.Itoa(q.Depth)}
	}
	if q.Q != "" {
		values["q"] = []string{q.Q}
	}
	if len(q.Filter) > 0 {
		filter, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}
		values["filter"] = []string{string(filter)}
	}
	if q.StartDate != "" {
		values["startDate"] = []string{q.StartDate}
	}
	if q.EndDate != "" {
		values["endDate"] = []string{q.EndDate}
	}
	return values, nil
}

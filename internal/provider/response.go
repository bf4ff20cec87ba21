package provider

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// Response is the one shape every provider answer is normalized into, whatever the
// endpoint sent: a JSON object, a form-encoded string or a bare status word.
type Response struct {
	OrderID      string `json:"orderId,omitempty"`
	StatusCode   string `json:"statusCode,omitempty"`
	Status       string `json:"status,omitempty"`
	Remark       string `json:"remark,omitempty"`
	MeterToken   string `json:"meterToken,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

var successCodes = map[string]bool{"100": true, "200": true}

var successStatuses = map[string]bool{
	"ORDER_RECEIVED":  true,
	"ORDER_COMPLETED": true,
	"ORDER_ONHOLD":    true,
}

// Successful checks both the code and the status word; endpoints disagree on which
// one they fill.
func (r *Response) Successful() bool {
	if r == nil {
		return false
	}
	return successCodes[r.StatusCode] || successStatuses[strings.ToUpper(r.Status)]
}

// field aliases seen across endpoints, all compared lower-case
var fieldAliases = map[string][]string{
	"orderid":      {"orderid", "order_id", "transactionid"},
	"statuscode":   {"statuscode", "status_code", "code"},
	"status":       {"status", "orderstatus"},
	"remark":       {"remark", "message", "msg"},
	"metertoken":   {"metertoken", "meter_token", "token"},
	"customername": {"customer_name", "customername", "name"},
}

// Normalize turns a raw provider body into a Response.
func Normalize(body []byte, contentType string) *Response {
	raw := strings.TrimSpace(string(body))
	fields := map[string]string{}

	switch {
	case looksJSON(body):
		fields = jsonFields(body)
	case strings.Contains(raw, "=") && !strings.ContainsAny(raw, " \n<"):
		if q, err := url.ParseQuery(raw); err == nil {
			for k, v := range q {
				if len(v) > 0 {
					fields[strings.ToLower(k)] = strings.TrimSpace(v[0])
				}
			}
		}
	case strings.Contains(contentType, "json") && raw != "":
		fields = jsonFields(body)
	}

	r := &Response{Raw: raw}
	if len(fields) == 0 {
		// a bare word such as "INSUFFICIENT_APIBALANCE"
		r.Status = strings.ToUpper(strings.Trim(raw, `"`))
		return r
	}
	r.OrderID = pick(fields, "orderid")
	r.StatusCode = pick(fields, "statuscode")
	r.Status = strings.ToUpper(pick(fields, "status"))
	r.Remark = pick(fields, "remark")
	r.MeterToken = pick(fields, "metertoken")
	r.CustomerName = pick(fields, "customername")
	return r
}

func pick(fields map[string]string, canonical string) string {
	for _, k := range fieldAliases[canonical] {
		if v, ok := fields[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func looksJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// jsonFields flattens a JSON object into lower-cased keys with string values.
func jsonFields(body []byte) map[string]string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[strings.ToLower(k)] = scalar(v)
	}
	return out
}

func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

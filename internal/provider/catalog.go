package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Network is a mobile network as the provider codes it.
type Network struct {
	Name string
	Code string
}

var networks = map[string]Network{
	"mtn":      {Name: "MTN", Code: "01"},
	"glo":      {Name: "GLO", Code: "02"},
	"9mobile":  {Name: "9mobile", Code: "03"},
	"etisalat": {Name: "9mobile", Code: "03"},
	"airtel":   {Name: "Airtel", Code: "04"},
}

// LookupNetwork accepts a network name in any case.
func LookupNetwork(name string) (Network, bool) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

func NetworkNames() []string {
	return []string{"MTN", "GLO", "9mobile", "Airtel"}
}

type MeterType string

const (
	Prepaid  MeterType = "prepaid"
	Postpaid MeterType = "postpaid"
)

func (m MeterType) Code() string {
	if m == Postpaid {
		return "02"
	}
	return "01"
}

func ParseMeterType(s string) (MeterType, error) {
	switch MeterType(strings.ToLower(strings.TrimSpace(s))) {
	case Prepaid:
		return Prepaid, nil
	case Postpaid:
		return Postpaid, nil
	default:
		return "", fmt.Errorf("unknown meter type %q", s)
	}
}

// Company is an electricity distribution company with its own purchase limits.
type Company struct {
	Key  string
	Name string
	Code string
	Min  decimal.Decimal
	Max  decimal.Decimal
}

func company(key, name, code string, min, max int64) Company {
	return Company{Key: key, Name: name, Code: code, Min: decimal.NewFromInt(min), Max: decimal.NewFromInt(max)}
}

var companies = map[string]Company{
	"eko-electric":          company("eko-electric", "Eko Electric (EKEDC)", "01", 1000, 200000),
	"ikeja-electric":        company("ikeja-electric", "Ikeja Electric (IKEDC)", "02", 1000, 200000),
	"abuja-electric":        company("abuja-electric", "Abuja Electric (AEDC)", "03", 1000, 200000),
	"kano-electric":         company("kano-electric", "Kano Electric (KEDC)", "04", 1000, 100000),
	"portharcourt-electric": company("portharcourt-electric", "Port Harcourt Electric (PHED)", "05", 1000, 100000),
	"jos-electric":          company("jos-electric", "Jos Electric (JED)", "06", 1000, 100000),
	"ibadan-electric":       company("ibadan-electric", "Ibadan Electric (IBEDC)", "07", 1000, 200000),
	"kaduna-electric":       company("kaduna-electric", "Kaduna Electric (KAEDC)", "08", 1000, 100000),
	"enugu-electric":        company("enugu-electric", "Enugu Electric (EEDC)", "09", 1000, 200000),
	"benin-electric":        company("benin-electric", "Benin Electric (BEDC)", "10", 1000, 200000),
	"yola-electric":         company("yola-electric", "Yola Electric (YEDC)", "11", 1000, 100000),
	"aba-electric":          company("aba-electric", "Aba Power (APLE)", "12", 1000, 100000),
}

func LookupCompany(key string) (Company, bool) {
	c, ok := companies[strings.ToLower(strings.TrimSpace(key))]
	return c, ok
}

func Companies() []Company {
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LocalPhone turns +234/234 numbers into the 0-prefixed national form the provider wants.
func LocalPhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "234") && len(p) == 13 {
		return "0" + p[3:]
	}
	return p
}

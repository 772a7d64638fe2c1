package narrow

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Filter is a single operator/operand term of a narrow as sent over the wire, e.g.
// {"operator":"pm-with","operand":"john@example.com"}.
type Filter struct {
	Operator string `json:"operator"`
	Operand  string `json:"operand"`
}

const (
	OperatorPMWith = "pm-with"
	OperatorStream = "stream"
	OperatorTopic  = "topic"
	OperatorIs     = "is"
	OperatorSearch = "search"

	OperandStarred   = "starred"
	OperandMentioned = "mentioned"
)

// ToFilters returns the wire representation of n. Home is the empty list.
func ToFilters(n Narrow) []Filter {
	switch v := n.(type) {
	case Private:
		return []Filter{{OperatorPMWith, v.Email}}
	case Group:
		return []Filter{{OperatorPMWith, strings.Join(v.Emails, KeySeparator)}}
	case Stream:
		return []Filter{{OperatorStream, v.Name}}
	case Topic:
		return []Filter{{OperatorStream, v.Stream}, {OperatorTopic, v.Topic}}
	case Starred:
		return []Filter{{OperatorIs, OperandStarred}}
	case Mentioned:
		return []Filter{{OperatorIs, OperandMentioned}}
	case Search:
		return []Filter{{OperatorSearch, v.Query}}
	}
	return []Filter{}
}

// FromFilters is the inverse of ToFilters.
func FromFilters(filters []Filter) (Narrow, error) {
	switch len(filters) {
	case 0:
		return HomeNarrow, nil
	case 1:
		f := filters[0]
		switch f.Operator {
		case OperatorPMWith:
			var emails []string
			for _, email := range strings.Split(f.Operand, KeySeparator) {
				email = strings.TrimSpace(email)
				if email != "" {
					emails = append(emails, email)
				}
			}
			switch len(emails) {
			case 0:
				return nil, fmt.Errorf("pm-with narrow has no recipients")
			case 1:
				return PrivateNarrow(emails[0]), nil
			default:
				return GroupNarrow(emails), nil
			}
		case OperatorStream:
			return StreamNarrow(f.Operand), nil
		case OperatorIs:
			switch f.Operand {
			case OperandStarred:
				return StarredNarrow(), nil
			case OperandMentioned:
				return MentionedNarrow(), nil
			}
			return nil, fmt.Errorf("unknown 'is' operand %q", f.Operand)
		case OperatorSearch:
			return SearchNarrow(f.Operand), nil
		case OperatorTopic:
			return nil, fmt.Errorf("topic narrow without a stream")
		}
		return nil, fmt.Errorf("unknown narrow operator %q", f.Operator)
	case 2:
		if filters[0].Operator == OperatorStream && filters[1].Operator == OperatorTopic {
			return TopicNarrow(filters[0].Operand, filters[1].Operand), nil
		}
	}
	return nil, fmt.Errorf("unsupported narrow with %d filters", len(filters))
}

// ParseFilters decodes a JSON narrow. Both the object form [{"operator":..,"operand":..}]
// and the legacy pair form [["stream","general"]] are accepted.
func ParseFilters(raw []byte) (Narrow, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("narrow is not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("narrow must be a JSON array")
	}
	var filters []Filter
	var err error
	parsed.ForEach(func(_, term gjson.Result) bool {
		var f Filter
		switch {
		case term.IsArray():
			pair := term.Array()
			if len(pair) != 2 {
				err = fmt.Errorf("narrow term %s is not an operator/operand pair", term.Raw)
				return false
			}
			f = Filter{Operator: pair[0].Str, Operand: pair[1].Str}
		case term.IsObject():
			f = Filter{Operator: term.Get("operator").Str, Operand: term.Get("operand").Str}
		default:
			err = fmt.Errorf("narrow term %s is not an object", term.Raw)
			return false
		}
		if f.Operator == "" {
			err = fmt.Errorf("narrow term %s has no operator", term.Raw)
			return false
		}
		filters = append(filters, f)
		return true
	})
	if err != nil {
		return nil, err
	}
	return FromFilters(filters)
}

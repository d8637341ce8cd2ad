package summarize

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Contact is a person mentioned in the meeting. All scalar fields are
// nullable; absence means the model found no mention.
type Contact struct {
	Name            *string `json:"name"`
	Role            *string `json:"role"`
	Location        *string `json:"location"`
	IsDecisionMaker *bool   `json:"is_decision_maker"`
	TenureDuration  *string `json:"tenure_duration"`
}

// Company is an organization mentioned in the meeting.
type Company struct {
	Name                 *string  `json:"name"`
	AUM                  *string  `json:"aum"`
	ICPClassification    *int     `json:"icp_classification"`
	Location             *string  `json:"location"`
	IsClient             *bool    `json:"is_client"`
	CompetitorProducts   []string `json:"competitor_products"`
	StrategiesOfInterest []string `json:"strategies_of_interest"`
}

// Deal is an investment opportunity mentioned in the meeting.
type Deal struct {
	TicketSize         *string  `json:"ticket_size"`
	ProductsOfInterest []string `json:"products_of_interest"`
}

// MeetingData is the structured extraction output persisted as data.json and
// flattened into the meetings CSV.
type MeetingData struct {
	Contacts  []Contact `json:"contacts"`
	Companies []Company `json:"companies"`
	Deals     []Deal    `json:"deals"`
}

// EmptyMeetingData returns a MeetingData with empty, non-nil arrays. Used
// when extraction fails or the session had no usable content, so data.json
// always carries the full shape.
func EmptyMeetingData() MeetingData {
	return MeetingData{
		Contacts:  []Contact{},
		Companies: []Company{},
		Deals:     []Deal{},
	}
}

// IsEmpty reports whether no structured data was extracted.
func (m MeetingData) IsEmpty() bool {
	return len(m.Contacts) == 0 && len(m.Companies) == 0 && len(m.Deals) == 0
}

// meetingDataSchema is the JSON Schema constraining extraction output. It is
// sent verbatim to runtimes with native schema support and used locally to
// validate raw-JSON fallbacks.
const meetingDataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "MeetingData",
  "type": "object",
  "properties": {
    "contacts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"], "description": "Full name of the contact"},
          "role": {"type": ["string", "null"], "description": "Job title or role"},
          "location": {"type": ["string", "null"], "description": "Geographic location"},
          "is_decision_maker": {"type": ["boolean", "null"], "description": "Whether they are a decision maker"},
          "tenure_duration": {"type": ["string", "null"], "description": "Duration in current position if mentioned"}
        }
      }
    },
    "companies": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"], "description": "Company name"},
          "aum": {"type": ["string", "null"], "description": "Assets Under Management"},
          "icp_classification": {"type": ["integer", "null"], "description": "ICP classification: 1 or 2"},
          "location": {"type": ["string", "null"], "description": "Geographic location"},
          "is_client": {"type": ["boolean", "null"], "description": "Whether they are currently a client"},
          "competitor_products": {
            "type": ["array", "null"],
            "items": {"type": "string"},
            "description": "List of competitor products they hold"
          },
          "strategies_of_interest": {
            "type": ["array", "null"],
            "items": {"type": "string"},
            "description": "Strategies of interest: trend, carry, m.arb (market arbitrage), gold, btc"
          }
        }
      }
    },
    "deals": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "ticket_size": {"type": ["string", "null"], "description": "Possible investment ticket size"},
          "products_of_interest": {
            "type": ["array", "null"],
            "items": {"type": "string"},
            "description": "Products of interest from: RSSB, RSST, RSBT, RSSY, RSBY, RSSX, RSBA, BTGD"
          }
        }
      }
    }
  },
  "required": ["contacts", "companies", "deals"]
}`

// MeetingDataSchema returns the raw JSON Schema document for MeetingData.
func MeetingDataSchema() []byte {
	return []byte(meetingDataSchema)
}

var compiledSchema = gojsonschema.NewStringLoader(meetingDataSchema)

// ParseMeetingData validates raw JSON against the MeetingData schema and
// unmarshals it. Returns an error describing the first few violations when
// the document does not conform.
func ParseMeetingData(raw []byte) (*MeetingData, error) {
	result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("summarize: validate meeting data: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		msg := ""
		for i, e := range errs {
			if i >= 3 {
				msg += fmt.Sprintf("; and %d more", len(errs)-i)
				break
			}
			if i > 0 {
				msg += "; "
			}
			msg += e.String()
		}
		return nil, fmt.Errorf("summarize: meeting data does not match schema: %s", msg)
	}

	var data MeetingData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("summarize: decode meeting data: %w", err)
	}
	if data.Contacts == nil {
		data.Contacts = []Contact{}
	}
	if data.Companies == nil {
		data.Companies = []Company{}
	}
	if data.Deals == nil {
		data.Deals = []Deal{}
	}
	return &data, nil
}

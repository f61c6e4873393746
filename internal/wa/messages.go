// Package wa is the WhatsApp Cloud API integration: outbound message
// construction, the rate-limited send client and the inbound webhook
// payload models.
package wa

// Message is any outbound Cloud API message payload.
type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Template         *Template    `json:"template,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type   string  `json:"type"`
	Header *Header `json:"header,omitempty"`
	Body   *Body   `json:"body,omitempty"`
	Footer *Body   `json:"footer,omitempty"`
	Action *Action `json:"action,omitempty"`
}

type Header struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Body struct {
	Text string `json:"text"`
}

type Action struct {
	Button     string          `json:"button,omitempty"`
	Sections   []Section       `json:"sections,omitempty"`
	Name       string          `json:"name,omitempty"`
	Parameters *FlowParameters `json:"parameters,omitempty"`
}

type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// FlowParameters configures an interactive flow launch.
type FlowParameters struct {
	Mode               string            `json:"mode,omitempty"`
	FlowMessageVersion string            `json:"flow_message_version"`
	FlowToken          string            `json:"flow_token"`
	FlowID             string            `json:"flow_id"`
	FlowCTA            string            `json:"flow_cta"`
	FlowAction         string            `json:"flow_action"`
	FlowActionPayload  map[string]string `json:"flow_action_payload,omitempty"`
}

type Template struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const brandHeader = "CBC"

// NewTextMessage builds a plain text message.
func NewTextMessage(mobile, body string) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               mobile,
		Type:             "text",
		Text:             &Text{Body: body},
	}
}

// NewListMessage builds an interactive list with a single section.
func NewListMessage(mobile, body, button string, rows []Row) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		To:               mobile,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "list",
			Header: &Header{Type: "text", Text: brandHeader},
			Body:   &Body{Text: body},
			Action: &Action{
				Button:   button,
				Sections: []Section{{Rows: rows}},
			},
		},
	}
}

// NewFlowMessage builds the interactive flow launch that opens the booking
// form at its first screen.
func NewFlowMessage(mobile, body, flowID, flowToken, firstScreen string) *Message {
	return &Message{
		MessagingProduct: "whatsapp",
		To:               mobile,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "flow",
			Header: &Header{Type: "text", Text: brandHeader},
			Body:   &Body{Text: body},
			Action: &Action{
				Name: "flow",
				Parameters: &FlowParameters{
					FlowMessageVersion: "3",
					FlowToken:          flowToken,
					FlowID:             flowID,
					FlowCTA:            "Book New Slot",
					FlowAction:         "navigate",
					FlowActionPayload:  map[string]string{"screen": firstScreen},
				},
			},
		},
	}
}

// NewTemplateMessage builds a pre-approved template message with body text
// parameters. Used for operator notifications outside the 24h session
// window.
func NewTemplateMessage(mobile, name string, params ...string) *Message {
	var components []TemplateComponent
	if len(params) > 0 {
		tp := make([]TemplateParameter, 0, len(params))
		for _, p := range params {
			tp = append(tp, TemplateParameter{Type: "text", Text: p})
		}
		components = []TemplateComponent{{Type: "body", Parameters: tp}}
	}
	return &Message{
		MessagingProduct: "whatsapp",
		To:               mobile,
		Type:             "template",
		Template: &Template{
			Name:       name,
			Language:   TemplateLanguage{Code: "en"},
			Components: components,
		},
	}
}

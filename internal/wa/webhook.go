package wa

import "encoding/json"

// WebhookPayload is the Cloud API webhook envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []InboundMessage  `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

// InboundMessage is one user message from the webhook. Type selects which
// of the optional bodies is present.
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *Text               `json:"text,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
	Payment     *InboundPayment     `json:"payment,omitempty"`
}

type InboundInteractive struct {
	Type      string     `json:"type"`
	ListReply *ListReply `json:"list_reply,omitempty"`
	NFMReply  *NFMReply  `json:"nfm_reply,omitempty"`
}

type ListReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NFMReply carries the JSON the flow posted on its final screen.
type NFMReply struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// InboundPayment is the platform payment status notification tied to a
// reference id.
type InboundPayment struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Amount      struct {
		Value  int64 `json:"value"`
		Offset int64 `json:"offset"`
	} `json:"amount"`
	Currency string `json:"currency"`
}

// FirstMessage digs the first inbound message out of the envelope. The
// webhook batches but in practice delivers one message per POST.
func (p *WebhookPayload) FirstMessage() *InboundMessage {
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			if len(c.Value.Messages) > 0 {
				return &c.Value.Messages[0]
			}
		}
	}
	return nil
}

// IsFlowReply reports whether the message is a completed flow submission.
func (m *InboundMessage) IsFlowReply() bool {
	return m.Type == "interactive" && m.Interactive != nil && m.Interactive.NFMReply != nil
}

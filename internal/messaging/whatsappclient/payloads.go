package whatsappclient

import (
	"strconv"
	"time"
)

type sendTextPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

// MessageResponse is the Cloud API reply to a send request.
type MessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider id of the first accepted message.
func (r *MessageResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// WebhookPayload mirrors the envelope Meta posts to the webhook endpoint.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue carries the messages or statuses inside a webhook change.
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []rawMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

type rawMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *mediaRef `json:"image"`
	Document *mediaRef `json:"document"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// InboundMessage is the flattened view of one webhook message the handler
// actually cares about.
type InboundMessage struct {
	ProviderID  string
	From        string
	ProfileName string
	Type        string
	Text        string
	MediaID     string
	MediaType   string
	Filename    string
	Timestamp   time.Time
}

// ExtractMessages flattens a webhook payload into inbound messages, pairing
// each message with its contact profile name when present.
func (p *WebhookPayload) ExtractMessages() []InboundMessage {
	if p == nil {
		return nil
	}
	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				in := InboundMessage{
					ProviderID:  msg.ID,
					From:        msg.From,
					ProfileName: names[msg.From],
					Type:        msg.Type,
					Timestamp:   parseUnixSeconds(msg.Timestamp),
				}
				if msg.Text != nil {
					in.Text = msg.Text.Body
				}
				switch {
				case msg.Image != nil:
					in.MediaID = msg.Image.ID
					in.MediaType = msg.Image.MimeType
					if in.Text == "" {
						in.Text = msg.Image.Caption
					}
				case msg.Document != nil:
					in.MediaID = msg.Document.ID
					in.MediaType = msg.Document.MimeType
					in.Filename = msg.Document.Filename
					if in.Text == "" {
						in.Text = msg.Document.Caption
					}
				}
				out = append(out, in)
			}
		}
	}
	return out
}

func parseUnixSeconds(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

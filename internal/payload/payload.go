// Package payload builds inbound-webhook documents in the WhatsApp Business
// API shape (the 360dialog variant): an envelope for the business account
// containing one change with contact metadata and a single message.
package payload

import (
	"fmt"
	"time"
)

// Fixed identifiers of the simulated business account. Flows under test key
// off the message content, not these, so they are constants.
const (
	businessAccountID = "1195530322139282"
	phoneNumberID     = "895152937018567"
)

// Envelope is the top-level webhook document.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value  `json:"value"`
	Field string `json:"field"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
	Audio     *Media `json:"audio,omitempty"`
	Image     *Media `json:"image,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	ID       string `json:"id"`
	URL      string `json:"url"`
	Voice    bool   `json:"voice,omitempty"`
}

// Input carries the mandatory fields for one synthesized message. Every
// field is required; builders have no other failure mode.
type Input struct {
	PhoneID     string
	DisplayName string
	MessageID   string
	Body        string
	Timestamp   time.Time
}

// Text builds a text-message webhook document for in.
func TextMessage(in Input) Envelope {
	return envelope(in, Message{
		From:      in.PhoneID,
		ID:        in.MessageID,
		Timestamp: unixSeconds(in.Timestamp),
		Type:      "text",
		Text:      &Text{Body: in.Body},
	})
}

// AudioMessage builds a voice-note webhook document. The media fields carry
// fixed filler values; flows only ever look at the message type.
func AudioMessage(in Input) Envelope {
	return envelope(in, Message{
		From:      in.PhoneID,
		ID:        in.MessageID,
		Timestamp: unixSeconds(in.Timestamp),
		Type:      "audio",
		Audio: &Media{
			MimeType: "audio/ogg; codecs=opus",
			SHA256:   "KvlGNV3fCuluyzgD/SFHbBIeKTd8RaMEX5MAztZN6L8=",
			ID:       in.MessageID,
			URL:      "https://example.com/audio.ogg",
			Voice:    true,
		},
	})
}

// ImageMessage builds an image webhook document. Body is used as the image
// URL when non-empty.
func ImageMessage(in Input) Envelope {
	url := in.Body
	if url == "" {
		url = "https://example.com/image.jpg"
	}
	return envelope(in, Message{
		From:      in.PhoneID,
		ID:        in.MessageID,
		Timestamp: unixSeconds(in.Timestamp),
		Type:      "image",
		Image: &Media{
			MimeType: "image/jpeg",
			SHA256:   "abc123==",
			ID:       in.MessageID,
			URL:      url,
		},
	})
}

func envelope(in Input, msg Message) Envelope {
	return Envelope{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			ID: businessAccountID,
			Changes: []Change{{
				Field: "messages",
				Value: Value{
					MessagingProduct: "whatsapp",
					Metadata: Metadata{
						DisplayPhoneNumber: in.PhoneID,
						PhoneNumberID:      phoneNumberID,
					},
					Contacts: []Contact{{
						Profile: Profile{Name: in.DisplayName},
						WaID:    in.PhoneID,
					}},
					Messages: []Message{msg},
				},
			}},
		}},
	}
}

func unixSeconds(t time.Time) string {
	return fmt.Sprintf("%d", t.Unix())
}

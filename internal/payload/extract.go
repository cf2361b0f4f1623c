package payload

import "github.com/tidwall/gjson"

// Inbound is the sender and message text pulled out of a webhook body.
type Inbound struct {
	Phone string
	Name  string
	Body  string
}

// ExtractInbound pulls the sender phone and message text out of a raw
// request body. It accepts both the full WhatsApp envelope and the flat
// {"phone": ..., "message": ...} shape automation flows reply with.
// ok is false when neither shape yields a phone and a message.
func ExtractInbound(body []byte) (Inbound, bool) {
	if !gjson.ValidBytes(body) {
		return Inbound{}, false
	}

	// Full envelope: entry[0].changes[0].value.messages[0].
	msg := gjson.GetBytes(body, "entry.0.changes.0.value.messages.0")
	if msg.Exists() {
		in := Inbound{
			Phone: msg.Get("from").String(),
			Name:  gjson.GetBytes(body, "entry.0.changes.0.value.contacts.0.profile.name").String(),
			Body:  msg.Get("text.body").String(),
		}
		if in.Body == "" {
			// Non-text messages report their type as the body.
			in.Body = msg.Get("type").String()
		}
		if in.Phone != "" && in.Body != "" {
			return in, true
		}
		return Inbound{}, false
	}

	// Flat callback shape.
	in := Inbound{
		Phone: gjson.GetBytes(body, "phone").String(),
		Body:  gjson.GetBytes(body, "message").String(),
	}
	if in.Phone != "" && in.Body != "" {
		return in, true
	}
	return Inbound{}, false
}

package services

import (
	"github.com/tidwall/gjson"
)

// ParseWebhook maps a gateway event to a ledger action.
// Signature verification happens before the payload reaches here.
func (c *StripeConnectClient) ParseWebhook(payload []byte) WebhookResult {
	if !gjson.ValidBytes(payload) {
		return WebhookResult{Action: WebhookActionIgnored}
	}

	root := gjson.ParseBytes(payload)
	obj := root.Get("data.object")
	res := WebhookResult{
		Action:    WebhookActionIgnored,
		EventID:   root.Get("id").String(),
		EventType: root.Get("type").String(),
	}
	if obj.Get("object").String() != "payment_intent" || obj.Get("id").String() == "" {
		return res
	}
	res.IntentID = obj.Get("id").String()

	switch res.EventType {
	case "payment_intent.amount_capturable_updated":
		res.Action = WebhookActionAuthorized
		res.Amount = obj.Get("amount_capturable").Int()
	case "payment_intent.succeeded":
		res.Action = WebhookActionCaptured
		res.Amount = obj.Get("amount_received").Int()
	case "payment_intent.payment_failed", "payment_intent.canceled":
		res.Action = WebhookActionFailed
		res.Amount = obj.Get("amount").Int()
	default:
		return res
	}

	if md := obj.Get("metadata"); md.IsObject() {
		res.Metadata = make(map[string]string)
		md.ForEach(func(key, value gjson.Result) bool {
			res.Metadata[key.String()] = value.String()
			return true
		})
	}
	return res
}

// Package messaging holds the fallback ordering channel client. The channel
// is the always-available path: orders reach the restaurant here even when
// every POS backend is down.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// WhatsAppConfig carries the Cloud API coordinates for the sender number.
type WhatsAppConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	// RecipientByLocation maps a location id to the staff number that
	// receives incoming orders for that location.
	RecipientByLocation map[string]string
}

// WhatsAppChannel renders an order as a WhatsApp message to the location's
// staff number via the Cloud API.
type WhatsAppChannel struct {
	cfg        WhatsAppConfig
	httpClient *http.Client
}

func NewWhatsAppChannel(cfg WhatsAppConfig, httpClient *http.Client) *WhatsAppChannel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WhatsAppChannel{cfg: cfg, httpClient: httpClient}
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

// Send delivers the rendered order message. Errors bubble to the dispatcher,
// which logs them without ever failing the customer-facing order accept.
func (c *WhatsAppChannel) Send(ctx context.Context, location domain.Location, order domain.CanonicalOrder) error {
	recipient := c.cfg.RecipientByLocation[location.ID]
	if recipient == "" {
		return fmt.Errorf("no whatsapp recipient configured for location %s", location.ID)
	}

	msg := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             whatsAppText{Body: RenderOrder(location, order)},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// RenderOrder formats the order as the staff-facing message body.
func RenderOrder(location domain.Location, order domain.CanonicalOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order %s - %s\n", order.OrderID, location.Name)
	if order.Customer.Name != "" || order.Customer.Phone != "" {
		fmt.Fprintf(&b, "Customer: %s %s\n", order.Customer.Name, order.Customer.Phone)
	}
	b.WriteString("\n")
	for _, it := range order.Items {
		fmt.Fprintf(&b, "%dx %s - %.2f\n", it.Quantity, it.Name, float64(it.Quantity)*it.UnitPrice)
		for _, mod := range it.Modifiers {
			fmt.Fprintf(&b, "   + %s\n", mod)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %.2f", order.Total)
	if order.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s", order.Note)
	}
	return b.String()
}

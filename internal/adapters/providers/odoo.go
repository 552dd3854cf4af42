package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
)

const odooSignatureHeader = "X-Odoo-Signature"

// OdooClient speaks the Odoo external JSON API: api-key auth, sale.order and
// product.template models. Field names (list_price, default_code, categ_id)
// follow the Odoo product schema.
type OdooClient struct {
	httpClient *http.Client
}

func NewOdooClient(httpClient *http.Client) *OdooClient {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &OdooClient{httpClient: httpClient}
}

func (c *OdooClient) Kind() domain.ProviderKind { return domain.ProviderOdoo }

type odooOrderLine struct {
	DefaultCode string  `json:"default_code"`
	Name        string  `json:"name"`
	Qty         int     `json:"product_uom_qty"`
	PriceUnit   float64 `json:"price_unit"`
}

type odooOrderRequest struct {
	ClientOrderRef string          `json:"client_order_ref"`
	CompanyID      string          `json:"company_id"`
	PartnerName    string          `json:"partner_name,omitempty"`
	PartnerPhone   string          `json:"partner_phone,omitempty"`
	Note           string          `json:"note,omitempty"`
	AmountTotal    float64         `json:"amount_total"`
	OrderLines     []odooOrderLine `json:"order_line"`
}

type odooOrderResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateOrder creates a sale.order. client_order_ref carries the canonical
// order id; Odoo deduplicates on it, so re-sends are idempotent vendor-side.
func (c *OdooClient) CreateOrder(ctx context.Context, cfg domain.ProviderConfig, order domain.CanonicalOrder) (ports.ProviderOrderRef, error) {
	body := odooOrderRequest{
		ClientOrderRef: order.OrderID,
		CompanyID:      cfg.StoreID,
		PartnerName:    order.Customer.Name,
		PartnerPhone:   order.Customer.Phone,
		Note:           order.Note,
		AmountTotal:    order.Total,
	}
	for _, it := range order.Items {
		name := it.Name
		if len(it.Modifiers) > 0 {
			name = name + " (" + strings.Join(it.Modifiers, ", ") + ")"
		}
		body.OrderLines = append(body.OrderLines, odooOrderLine{
			DefaultCode: it.MenuItemID,
			Name:        name,
			Qty:         it.Quantity,
			PriceUnit:   it.UnitPrice,
		})
	}

	var out odooOrderResponse
	if err := c.do(ctx, cfg, "/api/sale.order", body, &out); err != nil {
		return ports.ProviderOrderRef{}, err
	}
	ref := out.Name
	if ref == "" {
		ref = fmt.Sprintf("%d", out.ID)
	}
	return ports.ProviderOrderRef{Provider: domain.ProviderOdoo, ProviderOrderID: ref}, nil
}

type odooProductRequest struct {
	DefaultCode string  `json:"default_code"`
	Name        string  `json:"name"`
	Description string  `json:"description_sale,omitempty"`
	ListPrice   float64 `json:"list_price"`
	CategID     string  `json:"categ_id,omitempty"`
	Active      bool    `json:"active"`
}

func (c *OdooClient) UpsertCatalogItem(ctx context.Context, cfg domain.ProviderConfig, item domain.MenuItem, mapping domain.ProviderMapping) error {
	body := odooProductRequest{
		DefaultCode: mapping.ProviderItemID,
		Name:        item.Name,
		Description: item.Description,
		ListPrice:   item.Price,
		CategID:     item.Category,
		Active:      item.Available,
	}
	return c.do(ctx, cfg, "/api/product.template", body, nil)
}

// RetireCatalogItem archives the product (active=false) rather than deleting;
// Odoo forbids unlinking products referenced by orders.
func (c *OdooClient) RetireCatalogItem(ctx context.Context, cfg domain.ProviderConfig, mapping domain.ProviderMapping) error {
	body := odooProductRequest{
		DefaultCode: mapping.ProviderItemID,
		Active:      false,
	}
	return c.do(ctx, cfg, "/api/product.template", body, nil)
}

func (c *OdooClient) VerifyWebhookSignature(rawPayload []byte, headers http.Header, sharedSecret string) bool {
	return verifyHMACSHA256(rawPayload, headers.Get(odooSignatureHeader), sharedSecret)
}

type odooWebhookPayload struct {
	EventID   string `json:"event_id"`
	Model     string `json:"model"`
	CompanyID string `json:"company_id"`
	Timestamp string `json:"timestamp"`
	Record    struct {
		Name          string `json:"name"`
		State         string `json:"state"`
		PaymentStatus string `json:"payment_status"`
	} `json:"record"`
}

func (c *OdooClient) ParseWebhook(rawPayload []byte) (domain.WebhookEvent, error) {
	var payload odooWebhookPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("decode odoo webhook: %w", err)
	}
	if payload.EventID == "" {
		return domain.WebhookEvent{}, fmt.Errorf("odoo webhook missing event_id")
	}

	event := domain.WebhookEvent{
		Provider:   domain.ProviderOdoo,
		EventID:    payload.EventID,
		LocationID: payload.CompanyID,
	}
	if payload.Timestamp != "" {
		if at, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			event.OccurredAt = at.UTC()
		}
	}

	switch payload.Model {
	case "sale.order":
		event.ProviderOrderID = payload.Record.Name
		if payload.Record.PaymentStatus != "" {
			event.EventType = domain.WebhookPayment
			event.PaymentStatus = payload.Record.PaymentStatus
		} else {
			event.EventType = domain.WebhookOrderStatus
			event.Status = normalizeOdooState(payload.Record.State)
		}
	case "product.template", "product.product":
		event.EventType = domain.WebhookMenu
	default:
		event.EventType = domain.WebhookEventType(payload.Model)
	}
	return event, nil
}

// normalizeOdooState maps sale.order workflow states onto the vendor-neutral
// status vocabulary the ingestor understands.
func normalizeOdooState(state string) string {
	switch state {
	case "sale", "done":
		return "confirmed"
	case "cancel":
		return "cancelled"
	case "draft", "sent":
		return "processing"
	}
	return state
}

func (c *OdooClient) do(ctx context.Context, cfg domain.ProviderConfig, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode odoo request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build odoo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError("odoo", err)
	}
	defer resp.Body.Close()
	if err := classifyResponse("odoo", resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode odoo response: %w", err)
		}
	}
	return nil
}

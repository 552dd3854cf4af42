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

const loyverseSignatureHeader = "X-Loyverse-Signature"

// LoyverseClient translates canonical orders and catalog items into the
// Loyverse receipts/items API. Bearer-token auth, JSON bodies, webhook
// authenticity via HMAC-SHA256 over the raw payload.
type LoyverseClient struct {
	httpClient *http.Client
}

func NewLoyverseClient(httpClient *http.Client) *LoyverseClient {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &LoyverseClient{httpClient: httpClient}
}

func (c *LoyverseClient) Kind() domain.ProviderKind { return domain.ProviderLoyverse }

type loyverseLineItem struct {
	ItemID   string  `json:"item_id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Note     string  `json:"line_note,omitempty"`
}

type loyverseReceiptRequest struct {
	StoreID       string             `json:"store_id"`
	ReceiptNumber string             `json:"receipt_number"`
	Source        string             `json:"source"`
	Note          string             `json:"note,omitempty"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	TotalMoney    float64            `json:"total_money"`
	LineItems     []loyverseLineItem `json:"line_items"`
}

type loyverseReceiptResponse struct {
	ReceiptNumber string `json:"receipt_number"`
	ReceiptID     string `json:"receipt_id"`
}

// CreateOrder posts the order as a Loyverse receipt. The receipt number is the
// canonical order id, which Loyverse treats as an idempotency reference:
// resubmitting the same number never creates a second receipt.
func (c *LoyverseClient) CreateOrder(ctx context.Context, cfg domain.ProviderConfig, order domain.CanonicalOrder) (ports.ProviderOrderRef, error) {
	body := loyverseReceiptRequest{
		StoreID:       cfg.StoreID,
		ReceiptNumber: order.OrderID,
		Source:        "online_order",
		Note:          order.Note,
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
		TotalMoney:    order.Total,
	}
	for _, it := range order.Items {
		body.LineItems = append(body.LineItems, loyverseLineItem{
			ItemID:   it.MenuItemID,
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
			Note:     strings.Join(it.Modifiers, ", "),
		})
	}

	var out loyverseReceiptResponse
	if err := c.do(ctx, cfg, http.MethodPost, "/v1.0/receipts", body, &out); err != nil {
		return ports.ProviderOrderRef{}, err
	}
	providerOrderID := out.ReceiptID
	if providerOrderID == "" {
		providerOrderID = out.ReceiptNumber
	}
	return ports.ProviderOrderRef{Provider: domain.ProviderLoyverse, ProviderOrderID: providerOrderID}, nil
}

type loyverseItemRequest struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"item_name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category_name,omitempty"`
	Price       float64 `json:"price"`
	Available   bool    `json:"available_for_sale"`
}

// UpsertCatalogItem mirrors one canonical item under the mapped SKU.
func (c *LoyverseClient) UpsertCatalogItem(ctx context.Context, cfg domain.ProviderConfig, item domain.MenuItem, mapping domain.ProviderMapping) error {
	body := loyverseItemRequest{
		SKU:         mapping.ProviderItemID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       item.Price,
		Available:   item.Available,
	}
	return c.do(ctx, cfg, http.MethodPost, "/v1.0/items", body, nil)
}

// RetireCatalogItem marks the mirrored SKU unavailable for sale. Loyverse has
// no hard delete for items referenced by receipts.
func (c *LoyverseClient) RetireCatalogItem(ctx context.Context, cfg domain.ProviderConfig, mapping domain.ProviderMapping) error {
	body := loyverseItemRequest{
		SKU:       mapping.ProviderItemID,
		Available: false,
	}
	return c.do(ctx, cfg, http.MethodPost, "/v1.0/items", body, nil)
}

func (c *LoyverseClient) VerifyWebhookSignature(rawPayload []byte, headers http.Header, sharedSecret string) bool {
	return verifyHMACSHA256(rawPayload, headers.Get(loyverseSignatureHeader), sharedSecret)
}

type loyverseWebhookPayload struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	CreatedAt  string `json:"created_at"`
	Receipts   []struct {
		ReceiptID     string `json:"receipt_id"`
		ReceiptNumber string `json:"receipt_number"`
		Status        string `json:"status"`
		PaymentStatus string `json:"payment_status"`
	} `json:"receipts"`
}

// ParseWebhook decodes a Loyverse push into the canonical event shape.
func (c *LoyverseClient) ParseWebhook(rawPayload []byte) (domain.WebhookEvent, error) {
	var payload loyverseWebhookPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("decode loyverse webhook: %w", err)
	}
	if payload.EventID == "" {
		return domain.WebhookEvent{}, fmt.Errorf("loyverse webhook missing event_id")
	}

	event := domain.WebhookEvent{
		Provider:   domain.ProviderLoyverse,
		EventID:    payload.EventID,
		LocationID: payload.MerchantID,
	}
	if payload.CreatedAt != "" {
		if at, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
			event.OccurredAt = at.UTC()
		}
	}

	switch {
	case strings.HasPrefix(payload.Type, "receipts."):
		event.EventType = domain.WebhookOrderStatus
		if len(payload.Receipts) > 0 {
			event.ProviderOrderID = payload.Receipts[0].ReceiptID
			event.Status = payload.Receipts[0].Status
			if payload.Receipts[0].PaymentStatus != "" {
				event.EventType = domain.WebhookPayment
				event.PaymentStatus = payload.Receipts[0].PaymentStatus
			}
		}
	case strings.HasPrefix(payload.Type, "items."), strings.HasPrefix(payload.Type, "categories."):
		event.EventType = domain.WebhookMenu
	default:
		event.EventType = domain.WebhookEventType(payload.Type)
	}
	return event, nil
}

func (c *LoyverseClient) do(ctx context.Context, cfg domain.ProviderConfig, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode loyverse request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cfg.BaseURL, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build loyverse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError("loyverse", err)
	}
	defer resp.Body.Close()
	if err := classifyResponse("loyverse", resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode loyverse response: %w", err)
		}
	}
	return nil
}

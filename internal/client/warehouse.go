package client

import (
	"context"
	"net/url"
)

// InventoryStatus is the warehouse's view of a single variant's stock.
type InventoryStatus struct {
	Quantity          int    `json:"quantity"`
	ReservedQuantity  int    `json:"reservedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	MaxStockLevel     int    `json:"maxStockLevel"`
	Status            string `json:"status"`
}

// FulfillResult reports whether the warehouse could reserve stock for a
// variant's demand and, if not, how many grosir bundles the factory must
// produce to cover it.
type FulfillResult struct {
	Message           string `json:"message"`
	HasStock          bool   `json:"hasStock"`
	Reserved          int    `json:"reserved"`
	GrosirUnitsNeeded int    `json:"grosirUnitsNeeded"`
}

type Warehouse interface {
	GetInventoryStatus(ctx context.Context, productID string, variantID *string) (*InventoryStatus, error)
	FulfillBundleDemand(ctx context.Context, productID string, variantID *string, quantity, wholesaleUnit int) (*FulfillResult, error)
}

type warehouseClient struct {
	httpClient
}

func NewWarehouseClient(baseURL string) Warehouse {
	return &warehouseClient{newHTTPClient(baseURL)}
}

func (c *warehouseClient) GetInventoryStatus(ctx context.Context, productID string, variantID *string) (*InventoryStatus, error) {
	query := url.Values{"productId": {productID}}
	if variantID != nil {
		query.Set("variantId", *variantID)
	}

	var envelope struct {
		Data InventoryStatus `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/inventory/status", query, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *warehouseClient) FulfillBundleDemand(ctx context.Context, productID string, variantID *string, quantity, wholesaleUnit int) (*FulfillResult, error) {
	body := map[string]any{
		"productId":     productID,
		"variantId":     variantID,
		"quantity":      quantity,
		"wholesaleUnit": wholesaleUnit,
	}

	var result FulfillResult
	if err := c.postJSON(ctx, "/api/warehouse/fulfill-bundle-demand", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

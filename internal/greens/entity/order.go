package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 客户订单: demand intake only; pricing/invoicing live elsewhere.
// The fulfillment status is advanced exclusively by the crop lifecycle
// event consumers, never written by the growing engines directly.
type Order struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Code         string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	CustomerName string    `json:"customer_name" gorm:"size:128"`
	DeliveryDate time.Time `json:"delivery_date" gorm:"type:date;not null"`
	Status       string    `json:"status" gorm:"size:24;not null;default:pending"`
	Notes        string    `json:"notes" gorm:"type:text"`
	CreatedBy    string    `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// 关联
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单行项: one variety demand line. HarvestDate, when set,
// overrides the delivery-minus-offset convention for this line only.
type OrderItem struct {
	ID            string          `json:"id" gorm:"primaryKey;size:32"`
	OrderID       string          `json:"order_id" gorm:"size:32;not null;index"`
	VarietyID     string          `json:"variety_id" gorm:"size:32;not null"`
	GramsRequired decimal.Decimal `json:"grams_required" gorm:"type:decimal(10,2);not null"`
	HarvestDate   *time.Time      `json:"harvest_date" gorm:"type:date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// 关联
	Order   *Order   `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Variety *Variety `json:"variety,omitempty" gorm:"foreignKey:VarietyID"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// 订单履约状态
const (
	OrderStatusPending        = "pending"
	OrderStatusPlanned        = "planned"
	OrderStatusGrowing        = "growing"
	OrderStatusReadyToHarvest = "ready_to_harvest"
	OrderStatusHarvested      = "harvested"
	OrderStatusCancelled      = "cancelled"
)

// Final reports whether the order is in a terminal state.
func (o *Order) Final() bool {
	return o.Status == OrderStatusHarvested || o.Status == OrderStatusCancelled
}

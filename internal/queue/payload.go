package queue

import (
	"encoding/json"
	"fmt"

	"tillsync/internal/domain/bill"
	"tillsync/internal/domain/customer"
	"tillsync/internal/domain/product"
)

// Payload is the tagged union carried by a queued transaction. Each variant
// holds a concrete validated shape; the (EntityType, Type) pair selects the
// decoder at replay time.
type Payload interface {
	EntityType() EntityType
	Validate() error
}

// ProductPayload carries a product for CREATE/UPDATE transactions.
type ProductPayload struct {
	Product product.Product `json:"product"`
}

func (p ProductPayload) EntityType() EntityType { return EntityProduct }
func (p ProductPayload) Validate() error        { return p.Product.Validate() }

// CustomerPayload carries a customer for CREATE/UPDATE transactions.
type CustomerPayload struct {
	Customer customer.Customer `json:"customer"`
}

func (p CustomerPayload) EntityType() EntityType { return EntityCustomer }
func (p CustomerPayload) Validate() error        { return p.Customer.Validate() }

// BillPayload carries a bill for CREATE/UPDATE transactions.
type BillPayload struct {
	Bill bill.Bill `json:"bill"`
}

func (p BillPayload) EntityType() EntityType { return EntityBill }
func (p BillPayload) Validate() error        { return p.Bill.Validate() }

// EncodePayload serializes a payload for persistence. Nil payloads (DELETE)
// encode to nil.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// DecodeProduct decodes a product payload from a transaction.
func DecodeProduct(tx *Transaction) (*ProductPayload, error) {
	var p ProductPayload
	if err := json.Unmarshal(tx.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode product payload %s: %w", tx.ID, err)
	}
	return &p, nil
}

// DecodeCustomer decodes a customer payload from a transaction.
func DecodeCustomer(tx *Transaction) (*CustomerPayload, error) {
	var p CustomerPayload
	if err := json.Unmarshal(tx.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode customer payload %s: %w", tx.ID, err)
	}
	return &p, nil
}

// DecodeBill decodes a bill payload from a transaction.
func DecodeBill(tx *Transaction) (*BillPayload, error) {
	var p BillPayload
	if err := json.Unmarshal(tx.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode bill payload %s: %w", tx.ID, err)
	}
	return &p, nil
}

package models

// ProductNotFound replaces the work type of orders whose product was deleted.
const ProductNotFound = "Product Not Found"

// Product is a restoration type. Code namespaces the order id sequence.
type Product struct {
	ID     string `bson:"_id" json:"id"`
	Name   string `bson:"name" json:"name"`
	Code   string `bson:"code" json:"code"`
	Active bool   `bson:"active" json:"active"`
}

// SequenceCounter is the high-water mark of allocated ids for one product code.
type SequenceCounter struct {
	Code         string `bson:"_id" json:"code"`
	LastSequence int64  `bson:"lastSequence" json:"lastSequence"`
}

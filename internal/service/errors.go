package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized: заказ принадлежит другому пользователю
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransactionFailure: непредвиденная ошибка БД, все изменения откатаны
	ErrTransactionFailure = errors.New("transaction failed")
	ErrOrderNotFound      = errors.New("order not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already taken")
)

// ValidationError содержит сообщения по полям запроса.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// StockError означает, что товар не найден или его остатка не хватает. ProductName пуст, если товара нет.
type StockError struct {
	ProductID   int64
	ProductName string
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "N/A"
	}
	return fmt.Sprintf("product out of stock or not found: %s", name)
}

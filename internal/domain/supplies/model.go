package supplies

import (
	"fmt"
	"time"
)

// Capacity сколько сборочных заданий помещается в одну поставку.
const Capacity = 10

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Supply struct {
	ID           string // id поставки на маркетплейсе
	CategoryName string
	Name         string
	OrderCount   int
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s Supply) Full() bool { return s.OrderCount >= Capacity }

// Add учитывает ещё одно задание и закрывает поставку при заполнении.
func (s *Supply) Add() {
	s.OrderCount++
	if s.Full() {
		s.Status = StatusInactive
	}
}

// Name имя новой поставки категории по её порядковому номеру.
func Name(category string, n int) string {
	return fmt.Sprintf("%s - %d", category, n)
}

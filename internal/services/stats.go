package services

import (
	"time"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

// OrderStats backs the analytics dashboard.
type OrderStats struct {
	Total      int                     `json:"total"`
	ByStatus   map[models.Status]int   `json:"byStatus"`
	ByPriority map[models.Priority]int `json:"byPriority"`
	Overdue    int                     `json:"overdue"`
}

// SummarizeOrders counts orders per status and priority. An order is overdue
// when its due date falls before the day of now and it is not delivered.
func SummarizeOrders(orders []models.Order, now time.Time) OrderStats {
	stats := OrderStats{
		Total:      len(orders),
		ByStatus:   make(map[models.Status]int, len(models.Pipeline)),
		ByPriority: map[models.Priority]int{models.PriorityNormal: 0, models.PriorityUrgent: 0},
	}
	for _, s := range models.Pipeline {
		stats.ByStatus[s] = 0
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	for _, o := range orders {
		stats.ByStatus[o.Status]++
		stats.ByPriority[o.Priority]++
		if !o.DueDate.IsZero() && o.DueDate.Before(today) && !o.Status.Terminal() {
			stats.Overdue++
		}
	}
	return stats
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harentsoaR/dentalab-api/internal/export"
	"github.com/harentsoaR/dentalab-api/internal/middleware"
	"github.com/harentsoaR/dentalab-api/internal/models"
	"github.com/harentsoaR/dentalab-api/internal/services"
)

// orderRequest is the body of create and update calls. Dates accept
// 2006-01-02 or RFC3339.
type orderRequest struct {
	PatientName    *string          `json:"patientName"`
	DoctorName     *string          `json:"doctorName"`
	ClinicName     *string          `json:"clinicName"`
	ToothNumber    *string          `json:"toothNumber"`
	Shade          *string          `json:"shade"`
	WorkType       *string          `json:"workType"`
	Status         *models.Status   `json:"status"`
	SubmissionDate *string          `json:"submissionDate"`
	DueDate        *string          `json:"dueDate"`
	Priority       *models.Priority `json:"priority"`
	Notes          *string          `json:"notes"`
	AssignedTech   *string          `json:"assignedTech"`
	Attachments    *[]string        `json:"attachments"`
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

func optionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (r orderRequest) patch() (models.OrderPatch, error) {
	submitted, err := optionalDate(r.SubmissionDate)
	if err != nil {
		return models.OrderPatch{}, err
	}
	due, err := optionalDate(r.DueDate)
	if err != nil {
		return models.OrderPatch{}, err
	}
	return models.OrderPatch{
		PatientName:    r.PatientName,
		DoctorName:     r.DoctorName,
		ClinicName:     r.ClinicName,
		ToothNumber:    r.ToothNumber,
		Shade:          r.Shade,
		WorkType:       r.WorkType,
		Status:         r.Status,
		SubmissionDate: submitted,
		DueDate:        due,
		Priority:       r.Priority,
		Notes:          r.Notes,
		AssignedTech:   r.AssignedTech,
		Attachments:    r.Attachments,
	}, nil
}

func (r orderRequest) draft() (models.OrderDraft, error) {
	p, err := r.patch()
	if err != nil {
		return models.OrderDraft{}, err
	}
	d := models.OrderDraft{
		PatientName:  str(p.PatientName),
		DoctorName:   str(p.DoctorName),
		ClinicName:   str(p.ClinicName),
		ToothNumber:  str(p.ToothNumber),
		Shade:        str(p.Shade),
		WorkType:     str(p.WorkType),
		Notes:        str(p.Notes),
		AssignedTech: str(p.AssignedTech),
	}
	if p.SubmissionDate != nil {
		d.SubmissionDate = *p.SubmissionDate
	}
	if p.DueDate != nil {
		d.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		d.Priority = *p.Priority
	}
	if p.Attachments != nil {
		d.Attachments = *p.Attachments
	}
	return d, nil
}

// viewer is the authenticated account as orders see it: by role and by the
// display name orders carry.
type viewer struct {
	models.User
}

func (h *Handler) viewer(c *gin.Context) (viewer, bool) {
	u, err := h.Users.Get(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
		} else {
			h.respondError(c, err)
		}
		return viewer{}, false
	}
	return viewer{u}, true
}

// owns reports whether the order belongs to the viewer's own view.
func (v viewer) owns(o models.Order) bool {
	switch v.Role {
	case models.RoleAdmin:
		return true
	case models.RoleDoctor:
		return o.DoctorName == v.FullName
	case models.RoleTechnician:
		return o.AssignedTech == v.FullName
	}
	return false
}

// scope narrows filter to what the viewer may see.
func (v viewer) scope(filter services.OrderFilter) services.OrderFilter {
	switch v.Role {
	case models.RoleDoctor:
		filter.DoctorName = v.FullName
	case models.RoleTechnician:
		filter.AssignedTech = v.FullName
	}
	return filter
}

func (h *Handler) visibleOrders(c *gin.Context) ([]models.Order, bool) {
	v, ok := h.viewer(c)
	if !ok {
		return nil, false
	}
	filter := services.OrderFilter{
		Status:       models.Status(c.Query("status")),
		Priority:     models.Priority(c.Query("priority")),
		DoctorName:   c.Query("doctor"),
		AssignedTech: c.Query("technician"),
	}
	orders, err := h.Orders.ListOrders(c.Request.Context(), v.scope(filter))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return orders, true
}

// loadOwned fetches the order in the path and checks the viewer may act on it.
func (h *Handler) loadOwned(c *gin.Context) (viewer, models.Order, bool) {
	v, ok := h.viewer(c)
	if !ok {
		return viewer{}, models.Order{}, false
	}
	o, err := h.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return viewer{}, models.Order{}, false
	}
	if !v.owns(o) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this order"})
		return viewer{}, models.Order{}, false
	}
	return v, o, true
}

// --- GET ORDERS (role filtered, with query filters) ---
func (h *Handler) GetOrders(c *gin.Context) {
	orders, ok := h.visibleOrders(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	_, o, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o)
}

// --- CREATE ORDER ---
// Doctors always order under their own name and clinic.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	d, err := req.draft()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, ok := h.viewer(c)
	if !ok {
		return
	}
	if v.Role == models.RoleDoctor {
		d.DoctorName = v.FullName
		d.ClinicName = v.RelatedEntity
	}

	o, err := h.Orders.CreateOrder(c.Request.Context(), d)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// --- UPDATE ORDER ---
// Admins may change any field. Technicians may only move the status or hand
// over their own cases.
func (h *Handler) UpdateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	patch, err := req.patch()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No update fields provided"})
		return
	}

	v, current, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if v.Role == models.RoleTechnician {
		allowed := models.OrderPatch{Status: patch.Status, AssignedTech: patch.AssignedTech}
		if patch != allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Technicians may only change status and assignee"})
			return
		}
	}

	o, err := h.Orders.UpdateOrder(c.Request.Context(), current.ID, patch)
	h.respondOrderChange(c, o, err)
}

// respondOrderChange writes the result of an update. A partial migration is
// reported as 207 so an admin can remove the stale record.
func (h *Handler) respondOrderChange(c *gin.Context, o models.Order, err error) {
	var merr *services.MigrationError
	switch {
	case errors.As(err, &merr):
		h.Logger.Warn("partial order migration", zap.String("old_id", merr.OldID), zap.String("new_id", merr.NewID))
		c.JSON(http.StatusMultiStatus, gin.H{
			"order":   o,
			"staleId": merr.OldID,
			"warning": merr.Error(),
		})
	case err != nil:
		h.respondError(c, err)
	default:
		c.JSON(http.StatusOK, o)
	}
}

func (h *Handler) AdvanceOrder(c *gin.Context) {
	_, current, ok := h.loadOwned(c)
	if !ok {
		return
	}
	o, err := h.Orders.AdvanceStatus(c.Request.Context(), current)
	h.respondOrderChange(c, o, err)
}

// AssignOrder hands the case to another technician.
func (h *Handler) AssignOrder(c *gin.Context) {
	var req struct {
		Technician string `json:"technician" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "technician is required"})
		return
	}
	_, current, ok := h.loadOwned(c)
	if !ok {
		return
	}
	o, err := h.Orders.ReassignTechnician(c.Request.Context(), current.ID, req.Technician)
	h.respondOrderChange(c, o, err)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	if err := h.Orders.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully"})
}

// --- ANALYTICS & EXPORT ---

func (h *Handler) GetOrderStats(c *gin.Context) {
	orders, ok := h.visibleOrders(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, services.SummarizeOrders(orders, h.now()))
}

func (h *Handler) ExportOrders(c *gin.Context) {
	orders, ok := h.visibleOrders(c)
	if !ok {
		return
	}
	data, err := export.Orders(orders)
	if err != nil {
		h.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("orders-%s.xlsx", h.now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, export.ContentType, data)
}

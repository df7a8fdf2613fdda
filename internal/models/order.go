package models

import "time"

type Status string

const (
	StatusSubmitted    Status = "SUBMITTED"
	StatusReceived     Status = "RECEIVED"
	StatusDesigning    Status = "DESIGNING"
	StatusMilling      Status = "MILLING"
	StatusGlazing      Status = "GLAZING"
	StatusQualityCheck Status = "QUALITY_CHECK"
	StatusDispatched   Status = "DISPATCHED"
	StatusDelivered    Status = "DELIVERED"
)

// Pipeline is the production workflow in forward order.
var Pipeline = []Status{
	StatusSubmitted,
	StatusReceived,
	StatusDesigning,
	StatusMilling,
	StatusGlazing,
	StatusQualityCheck,
	StatusDispatched,
	StatusDelivered,
}

// Index returns the position of s in Pipeline, or -1 for unknown values.
func (s Status) Index() int {
	for i, p := range Pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Index() >= 0 }

func (s Status) Terminal() bool { return s == StatusDelivered }

// Next returns the following pipeline stage. DELIVERED and unknown values
// are returned unchanged.
func (s Status) Next() Status {
	i := s.Index()
	if i < 0 || i == len(Pipeline)-1 {
		return s
	}
	return Pipeline[i+1]
}

type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityUrgent Priority = "Urgent"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// Order is a lab case. DoctorName, AssignedTech and WorkType are display-name
// links to User and Product records and are matched by exact string.
type Order struct {
	ID                string    `bson:"_id" json:"id"`
	PatientName       string    `bson:"patientName" json:"patientName"`
	DoctorName        string    `bson:"doctorName" json:"doctorName"`
	ClinicName        string    `bson:"clinicName" json:"clinicName"`
	ToothNumber       string    `bson:"toothNumber" json:"toothNumber"`
	Shade             string    `bson:"shade" json:"shade"`
	WorkType          string    `bson:"workType" json:"workType"`
	Status            Status    `bson:"status" json:"status"`
	SubmissionDate    time.Time `bson:"submissionDate" json:"submissionDate"`
	DueDate           time.Time `bson:"dueDate" json:"dueDate"`
	Priority          Priority  `bson:"priority" json:"priority"`
	Notes             string    `bson:"notes,omitempty" json:"notes,omitempty"`
	AssignedTech      string    `bson:"assignedTech,omitempty" json:"assignedTech,omitempty"`
	TechnicianHistory []string  `bson:"technicianHistory" json:"technicianHistory"`
	Attachments       []string  `bson:"attachments,omitempty" json:"attachments,omitempty"`
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	c.TechnicianHistory = append(make([]string, 0, len(o.TechnicianHistory)), o.TechnicianHistory...)
	if o.Attachments != nil {
		c.Attachments = append([]string(nil), o.Attachments...)
	}
	return c
}

// OrderPatch holds the fields of a partial update. Nil fields are left as is.
type OrderPatch struct {
	PatientName    *string    `json:"patientName,omitempty"`
	DoctorName     *string    `json:"doctorName,omitempty"`
	ClinicName     *string    `json:"clinicName,omitempty"`
	ToothNumber    *string    `json:"toothNumber,omitempty"`
	Shade          *string    `json:"shade,omitempty"`
	WorkType       *string    `json:"workType,omitempty"`
	Status         *Status    `json:"status,omitempty"`
	SubmissionDate *time.Time `json:"submissionDate,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	AssignedTech   *string    `json:"assignedTech,omitempty"`
	Attachments    *[]string  `json:"attachments,omitempty"`
}

func (p OrderPatch) Empty() bool {
	return p == OrderPatch{}
}

// Apply returns a copy of o with every non-nil patch field set. It does not
// touch ID or TechnicianHistory.
func (p OrderPatch) Apply(o Order) Order {
	out := o.Clone()
	if p.PatientName != nil {
		out.PatientName = *p.PatientName
	}
	if p.DoctorName != nil {
		out.DoctorName = *p.DoctorName
	}
	if p.ClinicName != nil {
		out.ClinicName = *p.ClinicName
	}
	if p.ToothNumber != nil {
		out.ToothNumber = *p.ToothNumber
	}
	if p.Shade != nil {
		out.Shade = *p.Shade
	}
	if p.WorkType != nil {
		out.WorkType = *p.WorkType
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.SubmissionDate != nil {
		out.SubmissionDate = *p.SubmissionDate
	}
	if p.DueDate != nil {
		out.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.AssignedTech != nil {
		out.AssignedTech = *p.AssignedTech
	}
	if p.Attachments != nil {
		out.Attachments = append([]string(nil), (*p.Attachments)...)
	}
	return out
}

// OrderDraft is the input for a new order. Status and ID are always assigned
// by the lifecycle.
type OrderDraft struct {
	PatientName    string    `json:"patientName" validate:"required"`
	DoctorName     string    `json:"doctorName" validate:"required"`
	ClinicName     string    `json:"clinicName"`
	ToothNumber    string    `json:"toothNumber"`
	Shade          string    `json:"shade"`
	WorkType       string    `json:"workType" validate:"required"`
	SubmissionDate time.Time `json:"submissionDate"`
	DueDate        time.Time `json:"dueDate" validate:"required"`
	Priority       Priority  `json:"priority"`
	Notes          string    `json:"notes"`
	AssignedTech   string    `json:"assignedTech"`
	Attachments    []string  `json:"attachments"`
}

package models

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RoleTechnician Role = "TECHNICIAN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleTechnician:
		return true
	}
	return false
}

// User is a portal account. RelatedEntity holds the clinic name for doctors
// and the specialization label for technicians.
type User struct {
	ID            string `bson:"_id" json:"id"`
	FullName      string `bson:"fullName" json:"fullName"`
	Email         string `bson:"email" json:"email"`
	Password      string `bson:"password" json:"-"` // Hide from JSON responses
	Role          Role   `bson:"role" json:"role"`
	RelatedEntity string `bson:"relatedEntity,omitempty" json:"relatedEntity,omitempty"`
}

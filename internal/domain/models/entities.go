package models

// Record carries the numeric identifier shared by every entity.
type Record struct {
	ID int64 `json:"id"`
}

// GetID returns the record identifier.
func (r *Record) GetID() int64 { return r.ID }

// SetID assigns the record identifier.
func (r *Record) SetID(id int64) { r.ID = id }

// Entity is implemented by every farm record type.
type Entity interface {
	GetID() int64
	SetID(id int64)
}

// User is an operator account of the farm application.
type User struct {
	Record
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt Timestamp `json:"created_at"`
}

// Employee is a farm worker; salaries reference it.
type Employee struct {
	Record
	Name     string    `json:"name"`
	Position string    `json:"position"`
	Phone    string    `json:"phone"`
	Salary   float64   `json:"salary"`
	HireDate Timestamp `json:"hire_date"`
	Active   bool      `json:"active"`
}

// Machine is a piece of farm machinery.
type Machine struct {
	Record
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Year          int       `json:"year"`
	PurchaseDate  Timestamp `json:"purchase_date"`
	PurchasePrice float64   `json:"purchase_price"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes"`
}

// Maintenance is a service intervention on a machine.
type Maintenance struct {
	Record
	MachineID   int64     `json:"machine_id"`
	Date        Timestamp `json:"date"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Cost        float64   `json:"cost"`
	NextDate    Timestamp `json:"next_date"`
}

// MachineFinance is an income or expense line attached to a machine.
type MachineFinance struct {
	Record
	MachineID   int64     `json:"machine_id"`
	Date        Timestamp `json:"date"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
}

// Animal is a single head of livestock.
type Animal struct {
	Record
	Tag       string    `json:"tag"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed"`
	Sex       string    `json:"sex"`
	BirthDate Timestamp `json:"birth_date"`
	Weight    float64   `json:"weight"`
	PastureID int64     `json:"pasture_id"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
}

// AnimalVeterinary is a veterinary act performed on an animal.
type AnimalVeterinary struct {
	Record
	AnimalID     int64     `json:"animal_id"`
	Date         Timestamp `json:"date"`
	Treatment    string    `json:"treatment"`
	Veterinarian string    `json:"veterinarian"`
	Cost         float64   `json:"cost"`
	Notes        string    `json:"notes"`
}

// AnimalFinance is an income or expense line attached to an animal.
type AnimalFinance struct {
	Record
	AnimalID    int64     `json:"animal_id"`
	Date        Timestamp `json:"date"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
}

// Pasture is a grazing parcel.
type Pasture struct {
	Record
	Name         string    `json:"name"`
	AreaHectares float64   `json:"area_hectares"`
	GrassType    string    `json:"grass_type"`
	Capacity     int       `json:"capacity"`
	Status       string    `json:"status"`
	LastGrazed   Timestamp `json:"last_grazed"`
}

// PastureFinance is an income or expense line attached to a pasture.
type PastureFinance struct {
	Record
	PastureID   int64     `json:"pasture_id"`
	Date        Timestamp `json:"date"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
}

// Investment is a capital expenditure. Details holds type-specific fields
// (e.g. hectares for land, horsepower for equipment).
type Investment struct {
	Record
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Amount      float64        `json:"amount"`
	Date        Timestamp      `json:"date"`
	Details     map[string]any `json:"details"`
}

// Service is a third-party service bill.
type Service struct {
	Record
	Provider    string    `json:"provider"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Date        Timestamp `json:"date"`
	Paid        bool      `json:"paid"`
}

// Tax is a tax liability.
type Tax struct {
	Record
	Name     string    `json:"name"`
	Amount   float64   `json:"amount"`
	DueDate  Timestamp `json:"due_date"`
	PaidDate Timestamp `json:"paid_date"`
	Paid     bool      `json:"paid"`
}

// Repair is a one-off repair expense.
type Repair struct {
	Record
	Item        string    `json:"item"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Date        Timestamp `json:"date"`
	Supplier    string    `json:"supplier"`
}

// Salary is a payment to an employee.
type Salary struct {
	Record
	EmployeeID  int64     `json:"employee_id"`
	Amount      float64   `json:"amount"`
	PaymentDate Timestamp `json:"payment_date"`
	Period      string    `json:"period"`
	Notes       string    `json:"notes"`
}

// Capital is money brought into the farm.
type Capital struct {
	Record
	Source      string    `json:"source"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Date        Timestamp `json:"date"`
}

package domain

// Person is the system of record entity. The ID is assigned by the store on
// create and never changes afterwards.
type Person struct {
	ID          string `json:"personId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phoneNumber"`
}

// Fields carries the client-supplied portion of a person record. Every field
// is required; ids are never client-supplied.
type Fields struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phoneNumber"`
}

// Validate reports every empty required field at once so clients can fix a
// payload in a single round trip.
func (f Fields) Validate() error {
	var missing []string
	if f.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if f.LastName == "" {
		missing = append(missing, "lastName")
	}
	if f.Address == "" {
		missing = append(missing, "address")
	}
	if f.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func (f Fields) apply(id string) Person {
	return Person{
		ID:          id,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Address:     f.Address,
		PhoneNumber: f.PhoneNumber,
	}
}

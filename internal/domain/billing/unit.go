package billing

// Unit is an organisational unit (faculty or study program) known to the ledger
type Unit struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

package models

// Technician is a maintenance operator account, looked up from the store at
// login. Credentials are stored and compared as-is; the terminal trusts its
// physical access controls.
type Technician struct {
	Username string
	Password string
	FullName string
	Role     string
}

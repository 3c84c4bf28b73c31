package model

// Resource is the read-only snapshot of a catalog entry as served by the
// resource catalog service. Pricing is in minor units (halalas).
type Resource struct {
	ID          string
	Slug        string
	Title       string
	Price       int64
	Currency    string
	IsFree      bool
	IsPublished bool
	AuthorID    string
	FileKey     string // protected file key in the file store
}

// User is the read-only snapshot served by the user directory service.
type User struct {
	ID       string
	Email    string
	Name     string
	IsActive bool
}
